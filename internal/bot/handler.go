package bot

//go:generate mockgen -source=handler.go -destination=./mocks/handler_mock.go -package=mocks Handler

import "context"

// Handler обрабатывает одно событие. Реализуется Dispatcher, используется
// транспортами.
type Handler interface {
	Handle(ctx context.Context, ev Event) ([]Reply, error)
}
