package memory

import (
	"github.com/secmon-lab/storynotes/pkg/domain/interfaces"
)

// Repository is an alias for Memory to match the pattern
type Repository = Memory

// Memory is an in-process Repository for development and tests
type Memory struct {
	user  *userRepository
	story *storyRepository
}

var _ interfaces.Repository = &Memory{}

func New() *Memory {
	return &Memory{
		user:  newUserRepository(),
		story: newStoryRepository(),
	}
}

func (m *Memory) User() interfaces.UserRepository {
	return m.user
}

func (m *Memory) Story() interfaces.StoryRepository {
	return m.story
}

func (m *Memory) Close() error {
	return nil
}
