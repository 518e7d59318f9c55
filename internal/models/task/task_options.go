package task

type TaskOption func(*Task)

func WithText(text string) TaskOption {
	if text == "" {
		return nil
	}
	return func(task *Task) {
		task.Text = text
	}
}

func WithRawText(rawText string) TaskOption {
	if rawText == "" {
		return nil
	}
	return func(task *Task) {
		task.RawText = rawText
	}
}

func WithStatus(status Status) TaskOption {
	if status == "" {
		return nil
	}
	return func(task *Task) {
		task.Status = status
	}
}

func WithDueAt(dueAt *Epoch) TaskOption {
	return func(task *Task) {
		task.DueAt = dueAt
	}
}

func WithRecurrence(recurrence string) TaskOption {
	return func(task *Task) {
		task.Recurrence = recurrence
	}
}

func WithNotes(notes string) TaskOption {
	return func(task *Task) {
		task.Notes = notes
	}
}

func WithPersonID(personID *int64) TaskOption {
	return func(task *Task) {
		task.PersonID = personID
	}
}

func WithAllDay(allDay bool) TaskOption {
	return func(task *Task) {
		task.AllDay = allDay
	}
}

// WithLink проставляет связку с календарём; записывается только
// через update c touchWatermark=false
func WithLink(link Link) TaskOption {
	return func(task *Task) {
		task.Link = link
	}
}

// ClearLink снимает связку (событие удалено или отменено на стороне Google)
func ClearLink() TaskOption {
	return func(task *Task) {
		task.Link = Link{}
	}
}
