package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// Calm, low-contrast console theme for local development. One fixed
// palette; no per-deployment theming knob since the only consumer is a
// developer's terminal.
const (
	colorReset  = "\x1b[0m"
	colorBold   = "\x1b[1m"
	colorDim    = "\x1b[38;5;245m"
	colorGreen  = "\x1b[38;5;108m"
	colorYellow = "\x1b[38;5;214m"
	colorRed    = "\x1b[38;5;167m"
	colorBlue   = "\x1b[38;5;109m"
)

type minimalEncoder struct {
	zapcore.Encoder
}

func newMinimalEncoder() zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		TimeKey:    "ts",
		LevelKey:   "level",
		NameKey:    "logger",
		MessageKey: "msg",
		LineEnding: zapcore.DefaultLineEnding,
		EncodeTime: zapcore.TimeEncoderOfLayout("15:04:05.000"),
	}
	return &minimalEncoder{Encoder: zapcore.NewConsoleEncoder(cfg)}
}

func levelColor(lvl zapcore.Level) string {
	switch lvl {
	case zapcore.DebugLevel:
		return colorDim
	case zapcore.WarnLevel:
		return colorYellow
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return colorRed
	default:
		return colorGreen
	}
}

// EncodeEntry renders one log line as `HH:MM:SS.mmm LEVEL logger: message  key=value ...`
// with the level colorized and fields dimmed, so a scrolling terminal stays
// scannable without the visual noise of full JSON.
func (e *minimalEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	buf := buffer.NewPool().Get()

	color := levelColor(entry.Level)
	buf.AppendString(colorDim)
	buf.AppendString(entry.Time.Format("15:04:05.000"))
	buf.AppendString(colorReset)
	buf.AppendString(" ")
	buf.AppendString(color)
	buf.AppendString(colorBold)
	buf.AppendString(fmt.Sprintf("%-5s", strings.ToUpper(entry.Level.String())))
	buf.AppendString(colorReset)
	buf.AppendString(" ")

	if entry.LoggerName != "" {
		buf.AppendString(colorBlue)
		buf.AppendString(entry.LoggerName)
		buf.AppendString(colorReset)
		buf.AppendString(": ")
	}

	buf.AppendString(entry.Message)

	if len(fields) > 0 {
		enc := zapcore.NewMapObjectEncoder()
		for _, f := range fields {
			f.AddTo(enc)
		}
		buf.AppendString("  ")
		buf.AppendString(colorDim)
		first := true
		for k, v := range enc.Fields {
			if !first {
				buf.AppendString(" ")
			}
			first = false
			buf.AppendString(k)
			buf.AppendString("=")
			fmt.Fprintf(buf, "%v", v)
		}
		buf.AppendString(colorReset)
	}

	buf.AppendString("\n")
	return buf, nil
}

func (e *minimalEncoder) Clone() zapcore.Encoder {
	return &minimalEncoder{Encoder: e.Encoder.Clone()}
}
