package complaint_test

import (
	"campusfix/backend/internal/models"

	"github.com/stretchr/testify/mock"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) ComplaintSubmitted(c models.Complaint) {
	m.Called(c)
}

func (m *MockNotifier) StatusChanged(c models.Complaint) {
	m.Called(c)
}

func (m *MockNotifier) Assigned(c models.Complaint) {
	m.Called(c)
}

func newMockNotifier() *MockNotifier {
	n := new(MockNotifier)
	n.On("ComplaintSubmitted", mock.AnythingOfType("models.Complaint")).Return()
	n.On("StatusChanged", mock.AnythingOfType("models.Complaint")).Return()
	n.On("Assigned", mock.AnythingOfType("models.Complaint")).Return()
	return n
}
