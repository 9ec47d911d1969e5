package services_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/benmeehan/killswitch/internal/mocks"
	"github.com/benmeehan/killswitch/internal/models"
	"github.com/benmeehan/killswitch/internal/services"
	"github.com/benmeehan/killswitch/internal/state_managers"
	"github.com/benmeehan/killswitch/internal/utils"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newControlService(session *mocks.MockSession) (*services.ControlService, *fakeMachine, *fakeStatus, *utils.JobQueue) {
	config := &models.DeviceConfig{
		Hostname:         "CYLENCE_3f2a9c",
		MQTTTopicControl: "cylence/control",
	}
	machine := &fakeMachine{outcome: state_managers.Outcome{Accepted: true, ReportStatus: true}}
	status := &fakeStatus{}
	jobs := utils.NewJobQueue(4)
	return services.NewControlService(session, config, machine, status, jobs, zerolog.Nop()), machine, status, jobs
}

func TestControlService_Route_Validation(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    error
	}{
		{"oversized", `{"clientId":"CYLENCE_3f2a9c","command":1,"pad":"` + strings.Repeat("x", 80) + `"}`, services.ErrMalformedEnvelope},
		{"not json", `clientId=CYLENCE_3f2a9c`, services.ErrMalformedEnvelope},
		{"wrong client id type", `{"clientId":7,"command":1}`, services.ErrMalformedEnvelope},
		{"no client id", `{"command":1}`, services.ErrNotAddressed},
		{"other host", `{"clientId":"CYLENCE_000000","command":1}`, services.ErrWrongTarget},
		{"other host without command", `{"clientId":"CYLENCE_000000"}`, services.ErrWrongTarget},
		{"no command", `{"clientId":"CYLENCE_3f2a9c"}`, services.ErrMissingCommand},
		{"command out of range", `{"clientId":"CYLENCE_3f2a9c","command":5}`, services.ErrUnknownCommand},
		{"negative command", `{"clientId":"CYLENCE_3f2a9c","command":-1}`, services.ErrUnknownCommand},
		{"command overflows a byte", `{"clientId":"CYLENCE_3f2a9c","command":259}`, services.ErrUnknownCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup
			cs, machine, status, _ := newControlService(new(mocks.MockSession))

			// Execute
			err := cs.Route([]byte(tt.payload))

			// Assert
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, machine.commands)
			assert.Zero(t, status.status)
		})
	}
}

func TestControlService_Route_AppliesCommand(t *testing.T) {
	// Setup
	cs, machine, status, _ := newControlService(new(mocks.MockSession))

	// Execute
	err := cs.Route([]byte(`{"clientId":"cylence_3F2A9C","command":4}`))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []models.ControlCommand{models.CommandActivate}, machine.commands)
	assert.Equal(t, 1, status.status)
}

func TestControlService_Route_IgnoredCommandStillReportsStatus(t *testing.T) {
	// Setup
	cs, machine, status, _ := newControlService(new(mocks.MockSession))
	machine.outcome = state_managers.Outcome{ReportStatus: true}

	// Execute
	err := cs.Route([]byte(`{"clientId":"CYLENCE_3f2a9c","command":3}`))

	// Assert
	assert.ErrorIs(t, err, services.ErrCommandIgnored)
	assert.Equal(t, 1, status.status)
}

func TestControlService_Route_IgnoredCommandWithoutReport(t *testing.T) {
	// Setup
	cs, machine, status, _ := newControlService(new(mocks.MockSession))
	machine.outcome = state_managers.Outcome{}

	// Execute
	err := cs.Route([]byte(`{"clientId":"CYLENCE_3f2a9c","command":4}`))

	// Assert
	assert.ErrorIs(t, err, services.ErrCommandIgnored)
	assert.Zero(t, status.status)
}

func TestControlService_Route_SessionDownIsNotAnError(t *testing.T) {
	// Setup
	cs, _, status, _ := newControlService(new(mocks.MockSession))
	status.err = services.ErrSessionDown

	// Execute
	err := cs.Route([]byte(`{"clientId":"CYLENCE_3f2a9c","command":1}`))

	// Assert
	assert.NoError(t, err)
}

func TestControlService_HandleMessage_QueuesForMainLoop(t *testing.T) {
	// Setup
	cs, machine, _, jobs := newControlService(new(mocks.MockSession))
	payload := []byte(`{"clientId":"CYLENCE_3f2a9c","command":0}`)

	// Execute
	cs.HandleMessage(nil, mocks.NewMockMessage("cylence/control", payload))
	copy(payload, "xxxxxxxxxx")

	// Assert
	assert.Empty(t, machine.commands)
	assert.Equal(t, 1, jobs.Pending())

	assert.Equal(t, 1, jobs.RunPending())
	assert.Equal(t, []models.ControlCommand{models.CommandDisable}, machine.commands)
}

func TestControlService_HandleMessage_DropsWhenQueueFull(t *testing.T) {
	// Setup
	cs, machine, _, jobs := newControlService(new(mocks.MockSession))
	msg := mocks.NewMockMessage("cylence/control", []byte(`{"clientId":"CYLENCE_3f2a9c","command":3}`))

	// Execute
	for i := 0; i < 6; i++ {
		cs.HandleMessage(nil, msg)
	}

	// Assert
	assert.Equal(t, 4, jobs.Pending())
	jobs.RunPending()
	assert.Len(t, machine.commands, 4)
}

func TestControlService_StartStop(t *testing.T) {
	// Setup
	session := new(mocks.MockSession)
	session.On("Subscribe", "cylence/control", byte(0), mock.Anything).Return(nil)
	session.On("Unsubscribe", []string{"cylence/control"}).Return(nil)
	cs, _, _, _ := newControlService(session)

	// Execute & Assert
	require.NoError(t, cs.Start())
	assert.Equal(t, "cylence/control", cs.Topic())

	require.NoError(t, cs.Stop())
	assert.Empty(t, cs.Topic())

	// A second stop has nothing to unsubscribe
	require.NoError(t, cs.Stop())
	session.AssertNumberOfCalls(t, "Unsubscribe", 1)
}

func TestControlService_Start_SubscribeError(t *testing.T) {
	// Setup
	session := new(mocks.MockSession)
	session.On("Subscribe", "cylence/control", byte(0), mock.Anything).Return(errors.New("not authorized"))
	cs, _, _, _ := newControlService(session)

	// Execute
	err := cs.Start()

	// Assert
	assert.EqualError(t, err, "failed to subscribe to cylence/control: not authorized")
	assert.Empty(t, cs.Topic())
}
