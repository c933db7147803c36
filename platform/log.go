package platform

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// dailyFileHook writes every entry to a per-day log file, switching files
// when the date changes.
type dailyFileHook struct {
	writer   *os.File
	logPath  string
	fileName string
	fileDate string
}

func (h *dailyFileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *dailyFileHook) Fire(entry *logrus.Entry) error {
	today := entry.Time.Format("2006-01-02")
	line, _ := entry.String()
	if h.fileDate != today {
		h.fileDate = today
		h.writer.Close()
		dir := fmt.Sprintf("%s/%s", h.logPath, h.fileDate)
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return err
		}
		h.writer, _ = os.OpenFile(fmt.Sprintf("%s/%s.log", dir, h.fileName), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	}
	_, err := h.writer.Write([]byte(line))
	return err
}

// LogFormatter renders entries as "[timestamp] [level] message".
type LogFormatter struct{}

func (f *LogFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b *bytes.Buffer
	if entry.Buffer != nil {
		b = entry.Buffer
	} else {
		b = &bytes.Buffer{}
	}
	fmt.Fprintf(b, "[%s] [%s] %s\n", entry.Time.Format("2006-01-02 15:04:05.000"), entry.Level, entry.Message)
	return b.Bytes(), nil
}

// NewLogger builds the application logger: stderr output plus a dated log
// file under logPath maintained by the daily hook.
func NewLogger(logPath, fileName string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&LogFormatter{})
	logger.SetOutput(os.Stderr)

	if err := os.MkdirAll(logPath, os.ModePerm); err != nil {
		logger.Errorf("failed to create log dir: %v", err)
		return logger
	}
	today := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("%s/%s-%s.log", logPath, today, fileName)
	logFile, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		logger.Errorf("failed to open log file: %v", err)
		return logger
	}
	logger.AddHook(&dailyFileHook{
		writer:   logFile,
		logPath:  logPath,
		fileName: fileName,
		fileDate: today,
	})
	return logger
}
