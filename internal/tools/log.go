package tools

import (
	"os"
	"strings"

	"github.com/modfin/henry/mapz"
	"github.com/sirupsen/logrus"
)

// NewLogger builds the root logger. format is "json" or "text".
func NewLogger(level, format string) *logrus.Logger {
	l := logrus.New()
	l.Out = os.Stdout
	if lvl, err := logrus.ParseLevel(level); err == nil {
		l.Level = lvl
	}
	if strings.EqualFold(format, "json") {
		l.Formatter = &logrus.JSONFormatter{}
	} else {
		l.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	}
	return l
}

func LoggerCloner(l *logrus.Logger) *Logger {
	return &Logger{
		def: l,
	}
}

type Logger struct {
	def *logrus.Logger
}

// New clones the root logger and tags every entry with who=name.
func (l *Logger) New(name string) *logrus.Logger {

	hooks := mapz.Clone(l.def.Hooks)

	ll := &logrus.Logger{
		Out:          l.def.Out,
		Formatter:    l.def.Formatter,
		Hooks:        hooks,
		Level:        l.def.Level,
		ExitFunc:     l.def.ExitFunc,
		ReportCaller: l.def.ReportCaller,
	}

	ll.AddHook(LoggerWho{Name: name})
	return ll
}

type LoggerWho struct {
	Name string
}

func (w LoggerWho) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (w LoggerWho) Fire(entry *logrus.Entry) error {
	entry.Data["who"] = w.Name
	return nil
}
