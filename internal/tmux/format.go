package tmux

import (
	"bufio"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// FieldSeparator delimits fields in -F output. ASCII Unit Separator never
// appears in session names or tty paths.
const FieldSeparator = "\x1f"

// JoinFormat builds a tmux format string from field expressions.
func JoinFormat(fields ...string) string {
	return strings.Join(fields, FieldSeparator)
}

var (
	sessionFormat = JoinFormat("#{session_name}", "#{session_windows}", "#{session_attached}")
	clientFormat  = JoinFormat("#{client_tty}", "#{client_session}")
)

// SessionRecord is one row of list-sessions.
type SessionRecord struct {
	Name     string `json:"name"`
	Windows  int    `json:"windows"`
	Attached int    `json:"attached"`
}

func parseSessions(out string) ([]SessionRecord, error) {
	var records []SessionRecord

	s := bufio.NewScanner(strings.NewReader(out))
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, FieldSeparator, 3)
		if len(parts) != 3 || parts[0] == "" {
			return nil, fmt.Errorf("invalid tmux list-sessions line: %q", line)
		}
		windows, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid window count in %q: %w", line, err)
		}
		attached, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil {
			return nil, fmt.Errorf("invalid attached count in %q: %w", line, err)
		}
		records = append(records, SessionRecord{Name: parts[0], Windows: windows, Attached: attached})
	}
	if err := s.Err(); err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}

// parseClients maps client tty to the tmux session it is attached to.
func parseClients(out string) (map[string]string, error) {
	clients := make(map[string]string)

	s := bufio.NewScanner(strings.NewReader(out))
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, FieldSeparator, 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid tmux list-clients line: %q", line)
		}
		clients[parts[0]] = parts[1]
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return clients, nil
}
