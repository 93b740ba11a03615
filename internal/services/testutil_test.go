package services

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fieldline/engine/internal/models"
	"github.com/fieldline/engine/internal/repository"
	"github.com/fieldline/engine/pkg/logger"
)

func ctxb() context.Context { return context.Background() }

func TestMain(m *testing.M) {
	// Initialize logger for tests (required by services)
	_, err := logger.Init("error", "json")
	if err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

// newTestDB opens a named in-memory sqlite database shared across the pooled
// connections of one test.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Workspace{},
		&models.User{},
		&models.Contact{},
		&models.Deal{},
		&models.Activity{},
		&models.Task{},
		&models.Automation{},
		&models.DeviationEvent{},
		&models.BusinessRule{},
		&models.Notification{},
	))
	return db
}

// env wires real repositories and services over a test database.
type env struct {
	db *gorm.DB

	dealRepo         repository.DealRepository
	activityRepo     repository.ActivityRepository
	userRepo         repository.UserRepository
	contactRepo      repository.ContactRepository
	workspaceRepo    repository.WorkspaceRepository
	automationRepo   repository.AutomationRepository
	taskRepo         repository.TaskRepository
	deviationRepo    repository.DeviationRepository
	notificationRepo repository.NotificationRepository

	notifier    Notifier
	deals       DealService
	automations AutomationService
	learning    LearningService
	stale       StaleJobService
	activities  ActivityService
	tasks       TaskService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := newTestDB(t)

	e := &env{
		db:               db,
		dealRepo:         repository.NewDealRepository(db),
		activityRepo:     repository.NewActivityRepository(db),
		userRepo:         repository.NewUserRepository(db),
		contactRepo:      repository.NewContactRepository(db),
		workspaceRepo:    repository.NewWorkspaceRepository(db),
		automationRepo:   repository.NewAutomationRepository(db),
		taskRepo:         repository.NewTaskRepository(db),
		deviationRepo:    repository.NewDeviationRepository(db),
		notificationRepo: repository.NewNotificationRepository(db),
	}

	e.notifier = NewInAppNotifier(e.notificationRepo)
	e.learning = NewLearningService(e.deviationRepo, e.dealRepo, e.userRepo, e.workspaceRepo, e.taskRepo, e.activityRepo, e.notifier)
	e.automations = NewAutomationService(e.automationRepo, e.dealRepo, e.activityRepo, e.taskRepo, e.userRepo, e.workspaceRepo, e.notifier)
	e.deals = NewDealService(DealServiceDeps{
		Deals:      e.dealRepo,
		Activities: e.activityRepo,
		Users:      e.userRepo,
		Contacts:   e.contactRepo,
		Workspaces: e.workspaceRepo,
		Evaluator:  e.automations,
		Deviations: e.learning,
		Pricing:    e.learning,
		Notifier:   e.notifier,
	})
	e.automations.BindStageMover(e.deals)
	e.activities = NewActivityService(e.activityRepo, e.dealRepo, e.contactRepo)
	e.tasks = NewTaskService(e.taskRepo, e.dealRepo, e.contactRepo)
	e.stale = NewStaleJobService(e.dealRepo, e.activityRepo, e.userRepo, e.workspaceRepo, e.notifier, e.learning, 0)
	return e
}

// fixture is one seeded workspace with its cast of users and a contact.
type fixture struct {
	ws      models.Workspace
	owner   models.User
	manager models.User
	member  models.User
	contact models.Contact
}

func (e *env) seedWorkspace(t *testing.T, name string) fixture {
	t.Helper()

	ownerID := uuid.New()
	ws := models.Workspace{
		ID:               uuid.New(),
		Name:             name,
		OwnerID:          ownerID,
		DaysUntilStale:   7,
		DaysUntilRotting: 14,
		AutoLearnPricing: true,
	}
	require.NoError(t, e.workspaceRepo.Create(ctxb(), &ws))

	owner := models.User{ID: ownerID, WorkspaceID: ws.ID, Email: name + "-owner@example.com", Name: "Olive Owner", Role: models.RoleOwner}
	manager := models.User{WorkspaceID: ws.ID, Email: name + "-manager@example.com", Name: "Max Manager", Role: models.RoleManager}
	member := models.User{WorkspaceID: ws.ID, Email: name + "-member@example.com", Name: "Tess Tech", Role: models.RoleTeamMember}
	for _, u := range []*models.User{&owner, &manager, &member} {
		require.NoError(t, e.userRepo.Create(ctxb(), u))
	}

	contact := models.Contact{WorkspaceID: ws.ID, Name: "Casey Customer", Email: name + "-casey@example.com"}
	require.NoError(t, e.contactRepo.Create(ctxb(), &contact))

	return fixture{ws: ws, owner: owner, manager: manager, member: member, contact: contact}
}

func (e *env) createDeal(t *testing.T, f fixture, title string, mutate func(*CreateDealInput)) *models.Deal {
	t.Helper()
	input := &CreateDealInput{
		WorkspaceID: f.ws.ID,
		ContactID:   f.contact.ID,
		Title:       title,
		Value:       500,
		Actor:       UserActor(f.owner.ID, f.owner.Name),
	}
	if mutate != nil {
		mutate(input)
	}
	d, err := e.deals.CreateDeal(ctxb(), input)
	require.NoError(t, err)
	return d
}

func (e *env) reloadDeal(t *testing.T, id uuid.UUID) models.Deal {
	t.Helper()
	var d models.Deal
	require.NoError(t, e.dealRepo.GetByID(ctxb(), id, &d))
	return d
}

func (e *env) dealActivities(t *testing.T, dealID uuid.UUID) []models.Activity {
	t.Helper()
	items, err := e.activityRepo.ListByDeal(ctxb(), dealID, 50)
	require.NoError(t, err)
	return items
}

func (e *env) notificationsFor(t *testing.T, userID uuid.UUID) []models.Notification {
	t.Helper()
	items, err := e.notificationRepo.ListByUser(ctxb(), userID, false, 50)
	require.NoError(t, err)
	return items
}
