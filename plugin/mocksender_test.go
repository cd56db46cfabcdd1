package plugin_test

import (
	"reflect"

	"go.uber.org/mock/gomock"

	"github.com/mithrilplus/memctl/signal"
)

// MockSender is a hand-written stand-in for what `mockgen -destination
// mock_sender_test.go . Sender` would generate for signal.Sender, in the
// same shape as the teacher's own //go:generate mockgen directives (see
// mem/vm/gmmu/generate_mocks.go), since no code generator runs in this
// environment.
type MockSender struct {
	ctrl     *gomock.Controller
	recorder *MockSenderMockRecorder
}

// MockSenderMockRecorder is the EXPECT() handle mockgen attaches to every
// mock type.
type MockSenderMockRecorder struct {
	mock *MockSender
}

// NewMockSender creates a mock signal.Sender bound to ctrl.
func NewMockSender(ctrl *gomock.Controller) *MockSender {
	m := &MockSender{ctrl: ctrl}
	m.recorder = &MockSenderMockRecorder{mock: m}
	return m
}

// EXPECT returns the recorder used to set call expectations.
func (m *MockSender) EXPECT() *MockSenderMockRecorder {
	return m.recorder
}

// Send implements signal.Sender.
func (m *MockSender) Send(req signal.Request) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "Send", req)
}

// Send records an expectation that Send will be called with req.
func (mr *MockSenderMockRecorder) Send(req interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(
		mr.mock, "Send", reflect.TypeOf((*MockSender)(nil).Send), req)
}
