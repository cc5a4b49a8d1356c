package mlog

import "go.uber.org/zap"

// ZapLogger adapts *zap.SugaredLogger to the Logger interface, mirroring
// the teacher's ZapWithTraceLogger wrapper in common/mzap.
type ZapLogger struct {
	Sugared *zap.SugaredLogger
}

// NewZapLogger builds a production zap logger wrapped as a Logger.
func NewZapLogger() (*ZapLogger, error) {
	base, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}

	return &ZapLogger{Sugared: base.Sugar()}, nil
}

func (l *ZapLogger) Info(args ...any)             { l.Sugared.Info(args...) }
func (l *ZapLogger) Infof(format string, a ...any) { l.Sugared.Infof(format, a...) }

func (l *ZapLogger) Error(args ...any)             { l.Sugared.Error(args...) }
func (l *ZapLogger) Errorf(format string, a ...any) { l.Sugared.Errorf(format, a...) }

func (l *ZapLogger) Warn(args ...any)             { l.Sugared.Warn(args...) }
func (l *ZapLogger) Warnf(format string, a ...any) { l.Sugared.Warnf(format, a...) }

func (l *ZapLogger) Debug(args ...any)             { l.Sugared.Debug(args...) }
func (l *ZapLogger) Debugf(format string, a ...any) { l.Sugared.Debugf(format, a...) }

//nolint:ireturn
func (l *ZapLogger) WithFields(fields ...any) Logger {
	return &ZapLogger{Sugared: l.Sugared.With(fields...)}
}

func (l *ZapLogger) Sync() error { return l.Sugared.Sync() }
