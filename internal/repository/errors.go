package repository

import "errors"

var ErrNotFound = errors.New("запись не найдена")

// ErrDuplicateLink — нарушение уникальности (user_id, calendar_id, calendar_event_id):
// две локальные задачи не могут указывать на одно событие календаря
var ErrDuplicateLink = errors.New("календарная связка уже занята другой задачей")
