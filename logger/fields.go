package logger

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ZapField wraps a zap.Field and implements the Field interface
type ZapField struct {
	zapField zap.Field
}

func (f ZapField) Key() string {
	return f.zapField.Key
}

func (f ZapField) Value() any {
	return f.zapField.Interface
}

func (f ZapField) ZapField() zap.Field {
	return f.zapField
}

// CustomField represents a field with custom key-value pairs
type CustomField struct {
	key   string
	value any
}

func (f CustomField) Key() string {
	return f.key
}

func (f CustomField) Value() any {
	return f.value
}

func (f CustomField) ZapField() zap.Field {
	return zap.Any(f.key, f.value)
}

// Field constructors
var (
	String = func(key, val string) Field {
		return ZapField{zap.String(key, val)}
	}

	Strings = func(key string, val []string) Field {
		return ZapField{zap.Strings(key, val)}
	}

	Int = func(key string, val int) Field {
		return ZapField{zap.Int(key, val)}
	}

	Int64 = func(key string, val int64) Field {
		return ZapField{zap.Int64(key, val)}
	}

	Uint64 = func(key string, val uint64) Field {
		return ZapField{zap.Uint64(key, val)}
	}

	Float64 = func(key string, val float64) Field {
		return ZapField{zap.Float64(key, val)}
	}

	Bool = func(key string, val bool) Field {
		return ZapField{zap.Bool(key, val)}
	}

	Time = func(key string, val time.Time) Field {
		return ZapField{zap.Time(key, val)}
	}

	Duration = func(key string, val time.Duration) Field {
		return ZapField{zap.Duration(key, val)}
	}

	Error = func(err error) Field {
		return ZapField{zap.Error(err)}
	}

	Stringer = func(key string, val fmt.Stringer) Field {
		return ZapField{zap.Stringer(key, val)}
	}

	Any = func(key string, val any) Field {
		return ZapField{zap.Any(key, val)}
	}

	Stack = func(key string) Field {
		return ZapField{zap.Stack(key)}
	}
)

// Service-oriented fields shared by the orchestrator packages.
var (
	ServiceID = func(id string) Field {
		return String("service", id)
	}

	Lifetime = func(lifetime fmt.Stringer) Field {
		return Stringer("lifetime", lifetime)
	}

	Stage = func(index int) Field {
		return Int("stage", index)
	}

	RunID = func(id string) Field {
		return String("run_id", id)
	}
)

// NewField creates a new field
func NewField(key string, value any) Field {
	return CustomField{key: key, value: value}
}

// FieldsToZap converts Field interfaces to zap.Field
func FieldsToZap(fields []Field) []zap.Field {
	zapFields := make([]zap.Field, len(fields))
	for i, field := range fields {
		zapFields[i] = field.ZapField()
	}

	return zapFields
}
