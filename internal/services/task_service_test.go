package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appErr "github.com/fieldline/engine/pkg/errors"
)

func TestCreateTaskValidation(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")

	_, err := e.tasks.CreateTask(ctxb(), &CreateTaskInput{WorkspaceID: f.ws.ID, ContactID: &f.contact.ID})
	require.True(t, appErr.IsCode(err, appErr.CodeInvalid))

	_, err = e.tasks.CreateTask(ctxb(), &CreateTaskInput{WorkspaceID: f.ws.ID, Title: "Call"})
	require.True(t, appErr.IsCode(err, appErr.CodeInvalid))
}

func TestCreateTaskDerivesContact(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")
	d := e.createDeal(t, f, "Job", nil)

	task, err := e.tasks.CreateTask(ctxb(), &CreateTaskInput{
		WorkspaceID: f.ws.ID, Title: "Confirm materials", DealID: &d.ID,
	})
	require.NoError(t, err)
	require.Equal(t, f.contact.ID, *task.ContactID)
}

func TestCreateTaskCrossWorkspace(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")
	other := e.seedWorkspace(t, "other")
	d := e.createDeal(t, f, "Job", nil)

	_, err := e.tasks.CreateTask(ctxb(), &CreateTaskInput{
		WorkspaceID: other.ws.ID, Title: "Sneaky", DealID: &d.ID,
	})
	require.True(t, appErr.IsCode(err, appErr.CodeNotFound))
}

func TestListTasksAndOverdue(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")
	d := e.createDeal(t, f, "Job", nil)

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	late, err := e.tasks.CreateTask(ctxb(), &CreateTaskInput{WorkspaceID: f.ws.ID, Title: "Late", DueAt: &past, DealID: &d.ID})
	require.NoError(t, err)
	_, err = e.tasks.CreateTask(ctxb(), &CreateTaskInput{WorkspaceID: f.ws.ID, Title: "Upcoming", DueAt: &future, DealID: &d.ID})
	require.NoError(t, err)
	_, err = e.tasks.CreateTask(ctxb(), &CreateTaskInput{WorkspaceID: f.ws.ID, Title: "Whenever", DealID: &d.ID})
	require.NoError(t, err)

	all, err := e.tasks.ListTasks(ctxb(), f.ws.ID, nil, 50)
	require.NoError(t, err)
	require.Len(t, all, 3)

	overdue, err := e.tasks.ListOverdue(ctxb(), f.ws.ID)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	require.Equal(t, "Late", overdue[0].Title)

	// Completing the late task clears the overdue list.
	require.NoError(t, e.tasks.CompleteTask(ctxb(), late.ID, f.ws.ID))
	overdue, err = e.tasks.ListOverdue(ctxb(), f.ws.ID)
	require.NoError(t, err)
	require.Empty(t, overdue)

	done := true
	completed, err := e.tasks.ListTasks(ctxb(), f.ws.ID, &done, 50)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	require.Equal(t, "Late", completed[0].Title)
	require.NotNil(t, completed[0].CompletedAt)
}

func TestCompleteTaskScoped(t *testing.T) {
	e := newEnv(t)
	f := e.seedWorkspace(t, "ws")
	other := e.seedWorkspace(t, "other")
	d := e.createDeal(t, f, "Job", nil)

	task, err := e.tasks.CreateTask(ctxb(), &CreateTaskInput{WorkspaceID: f.ws.ID, Title: "Call", DealID: &d.ID})
	require.NoError(t, err)

	err = e.tasks.CompleteTask(ctxb(), task.ID, other.ws.ID)
	require.True(t, appErr.IsCode(err, appErr.CodeNotFound))
}
