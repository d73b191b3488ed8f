package logging

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Компоненты сервиса, получающие собственный логгер
const (
	ComponentAtlas  = "atlas"
	ComponentMesher = "mesher"
	ComponentAPI    = "api"
)

// LoggerManager раздаёт логгеры компонентов. Каждый компонент пишет в свой файл
// logs/<component>_<время>.log, в режиме fileless только в консоль.
type LoggerManager struct {
	mu       sync.Mutex
	loggers  map[string]*Logger
	fileless bool
}

var (
	globalManager *LoggerManager
	managerOnce   sync.Once
)

// GetLoggerManager возвращает глобальный менеджер логгеров
func GetLoggerManager() *LoggerManager {
	managerOnce.Do(func() {
		globalManager = newLoggerManager()
	})
	return globalManager
}

func newLoggerManager() *LoggerManager {
	return &LoggerManager{loggers: make(map[string]*Logger)}
}

// SetFileless включает режим без файлов логов. Влияет только на логгеры, созданные после вызова.
func (lm *LoggerManager) SetFileless(v bool) {
	lm.mu.Lock()
	lm.fileless = v
	lm.mu.Unlock()
}

// GetLogger возвращает логгер компонента, создавая его при первом обращении.
// Новый логгер наследует консольный уровень глобального логгера.
func (lm *LoggerManager) GetLogger(component string) (*Logger, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if l, ok := lm.loggers[component]; ok {
		return l, nil
	}

	level := defaultLogger.consoleLevel()

	var l *Logger
	if lm.fileless {
		l = consoleOnly(component, level)
	} else {
		var err error
		if l, err = NewLogger(component); err != nil {
			return nil, fmt.Errorf("логгер %s: %w", component, err)
		}
		l.minConsoleLevel = level
	}

	lm.loggers[component] = l
	return l, nil
}

// MustGetLogger как GetLogger, но при ошибке файла возвращает консольный логгер
func (lm *LoggerManager) MustGetLogger(component string) *Logger {
	l, err := lm.GetLogger(component)
	if err != nil {
		Warn("⚠️  %v, пишем %s только в консоль", err, component)
		return consoleOnly(component, defaultLogger.consoleLevel())
	}
	return l
}

// SetLevel меняет консольный уровень всех созданных логгеров компонентов
func (lm *LoggerManager) SetLevel(level LogLevel) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	for _, l := range lm.loggers {
		l.mu.Lock()
		l.minConsoleLevel = level
		l.mu.Unlock()
	}
}

// Components возвращает отсортированные имена компонентов с логгерами
func (lm *LoggerManager) Components() []string {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	names := make([]string, 0, len(lm.loggers))
	for name := range lm.loggers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CloseAll закрывает файлы всех логгеров и забывает их
func (lm *LoggerManager) CloseAll() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	var errs []error
	for name, l := range lm.loggers {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	lm.loggers = make(map[string]*Logger)
	return errors.Join(errs...)
}

func consoleOnly(component string, level LogLevel) *Logger {
	return &Logger{
		component:       component,
		consoleLogger:   defaultLogger.consoleLogger,
		minConsoleLevel: level,
		minFileLevel:    ERROR,
	}
}

func GetAtlasLogger() *Logger  { return GetLoggerManager().MustGetLogger(ComponentAtlas) }
func GetMesherLogger() *Logger { return GetLoggerManager().MustGetLogger(ComponentMesher) }
func GetAPILogger() *Logger    { return GetLoggerManager().MustGetLogger(ComponentAPI) }
