package mbox

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	mboxlib "github.com/emersion/go-mbox"

	"github.com/dhcgn/chatlog-reconstruct/attachment"
	"github.com/dhcgn/chatlog-reconstruct/model"
	"github.com/dhcgn/chatlog-reconstruct/reconcile"
)

const (
	Sender     = "chatlog-reconstruct@localhost"
	subjectMax = 60
)

// Export writes records as an mbox archive, one message per record, in the
// order given. It returns the number of messages written.
func Export(path string, records []model.Record, logger *slog.Logger) (int, error) {
	if strings.TrimSpace(path) == "" {
		return 0, fmt.Errorf("mbox path is empty")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*.mbox")
	if err != nil {
		return 0, fmt.Errorf("create mbox: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	buf := bufio.NewWriter(tmp)
	n, err := Write(buf, records, logger)
	if err == nil {
		err = buf.Flush()
	}
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return n, fmt.Errorf("write mbox: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return n, fmt.Errorf("rename mbox: %w", err)
	}

	if logger != nil {
		logger.Info("exported mbox", "path", path, "messages", n)
	}
	return n, nil
}

// Write streams records to w in mbox format.
func Write(w io.Writer, records []model.Record, logger *slog.Logger) (int, error) {
	mw := mboxlib.NewWriter(w)
	for i, record := range records {
		date := messageDate(record, logger)
		msg, err := mw.CreateMessage(Sender, date)
		if err != nil {
			return i, fmt.Errorf("message %d: %w", i, err)
		}
		if err := writeMessage(msg, i, record, date); err != nil {
			return i, fmt.Errorf("message %d: %w", i, err)
		}
	}
	if err := mw.Close(); err != nil {
		return len(records), err
	}
	return len(records), nil
}

func writeMessage(w io.Writer, index int, record model.Record, date time.Time) error {
	id := record.DisplayID()
	messageID := fmt.Sprintf("<%d@chatlog-reconstruct>", index+1)
	if id != "" {
		messageID = fmt.Sprintf("<%s@chatlog-reconstruct>", sanitize(id))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\n", Sender)
	fmt.Fprintf(&b, "Date: %s\n", date.Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-Id: %s\n", messageID)
	fmt.Fprintf(&b, "Subject: %s\n", mime.QEncoding.Encode("utf-8", subject(record)))
	if id != "" {
		fmt.Fprintf(&b, "X-Chatlog-Id: %s\n", sanitize(id))
	}
	b.WriteString("MIME-Version: 1.0\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\n")
	b.WriteString("\n")

	b.WriteString(record.Contents())
	b.WriteString("\n")
	if refs := attachment.Normalize(record.Attachments()); len(refs) > 0 {
		b.WriteString("\nAttachments:\n")
		for _, ref := range refs {
			fmt.Fprintf(&b, "  %s\n", ref)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// messageDate falls back to the Unix epoch for records without a usable
// timestamp; the zero time.Time has no valid mail representation.
func messageDate(record model.Record, logger *slog.Logger) time.Time {
	ts, ok := record.Timestamp()
	if !ok {
		return time.Unix(0, 0).UTC()
	}
	t := reconcile.ResolveTimestamp(ts, logger)
	if t.IsZero() {
		return time.Unix(0, 0).UTC()
	}
	return t
}

func subject(record model.Record) string {
	line := strings.TrimSpace(record.Contents())
	if i := strings.IndexAny(line, "\r\n"); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if line == "" {
		if id := record.DisplayID(); id != "" {
			return "Message " + id
		}
		return "Message"
	}
	if utf8.RuneCountInString(line) > subjectMax {
		runes := []rune(line)
		line = string(runes[:subjectMax-3]) + "..."
	}
	return line
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '<' || r == '>' || r == '@' || r <= ' ' || r == 0x7f:
			return '_'
		}
		return r
	}, s)
}
