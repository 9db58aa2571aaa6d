package project

import "github.com/zhouzirui/z-notes/internal/model/project"

// Notifier receives every successful workspace mutation.
type Notifier interface {
	Publish(change project.Change)
}

// NopNotifier drops changes.
type NopNotifier struct{}

func (NopNotifier) Publish(project.Change) {}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(change project.Change)

func (f NotifierFunc) Publish(change project.Change) {
	f(change)
}
