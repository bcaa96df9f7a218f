package log

import "go.uber.org/zap"

var Log *zap.SugaredLogger

func InitLogger() {

	level := zap.NewAtomicLevelAt(zap.DebugLevel)
	logger, err := zap.Config{
		Level:            level,
		Development:      true,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}.Build()

	if err != nil {
		panic(err)
	}
	Log = logger.Sugar()
}

func init() {
	InitLogger()
}

func Infoln(msg string, args ...any) {
	Log.Infoln(msg, args)
}

func Errorln(msg string, args ...any) {
	Log.Errorln(msg, args)
}

func Debugln(msg string, args ...any) {
	Log.Debugln(msg, args)
}

func Warnln(msg string, args ...any) {
	Log.Warnln(msg, args)
}
