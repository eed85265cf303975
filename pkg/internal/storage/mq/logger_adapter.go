package mq

import (
	watermill "github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// zerologAdapter 把 watermill 的日志写到 zerolog.
// watermill 的 Info 日志（订阅建立、router 启停）很多，降为 Debug；错误保持 Error.
type zerologAdapter struct {
	l zerolog.Logger
}

// NewLoggerAdapter 把 zerolog.Logger 包装为 watermill 日志接口.
func NewLoggerAdapter(l zerolog.Logger) watermill.LoggerAdapter {
	return zerologAdapter{l: l}
}

func withFields(ev *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	return ev.Fields(map[string]any(fields))
}

func (z zerologAdapter) Error(msg string, err error, fields watermill.LogFields) {
	withFields(z.l.Error().Err(err), fields).Msg(msg)
}

func (z zerologAdapter) Info(msg string, fields watermill.LogFields) {
	withFields(z.l.Debug(), fields).Msg(msg)
}

func (z zerologAdapter) Debug(msg string, fields watermill.LogFields) {
	withFields(z.l.Trace(), fields).Msg(msg)
}

func (z zerologAdapter) Trace(msg string, fields watermill.LogFields) {
	withFields(z.l.Trace(), fields).Msg(msg)
}

func (z zerologAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return zerologAdapter{l: z.l.With().Fields(map[string]any(fields)).Logger()}
}
