package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/soyeahso/agentdesk/internal/api"
	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the root command with AGENTDESK_HOME pointed at a temp dir.
func run(t *testing.T, home string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("AGENTDESK_HOME", home)
	cfgFile, logLevel = "", ""
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "silent"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, true, parseValue("TRUE"))
	assert.Equal(t, false, parseValue("false"))
	assert.Equal(t, 8080, parseValue("8080"))
	assert.Equal(t, 1.5, parseValue("1.5"))
	assert.Equal(t, "30s", parseValue("30s"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello world", truncate("hello\n  world", 20))
	assert.Equal(t, "abc…", truncate("abcdefgh", 4))
	assert.Equal(t, "ñañ…", truncate("ñañañaña", 4))
}

func TestDescribeToken(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	sign := func(exp int64) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.StandardClaims{Subject: "7", ExpiresAt: exp}).SignedString([]byte("k"))
		require.NoError(t, err)
		return s
	}

	assert.Equal(t, "opaque", describeToken("not-a-jwt", now))
	assert.Equal(t, "no expiry", describeToken(sign(0), now))
	assert.Equal(t, "valid for 1h0m0s", describeToken(sign(now.Add(time.Hour).Unix()), now))
	assert.Contains(t, describeToken(sign(now.Add(-time.Minute).Unix()), now), "expired 1m0s ago")
}

func TestReadPassword_Piped(t *testing.T) {
	var prompt bytes.Buffer
	pw, err := readPassword(strings.NewReader("s3cret\n"), &prompt)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pw)
	assert.Equal(t, "Password: ", prompt.String())

	f, err := os.CreateTemp(t.TempDir(), "stdin")
	require.NoError(t, err)
	_, err = f.WriteString("from-file\n")
	require.NoError(t, err)
	_, err = f.Seek(0, 0)
	require.NoError(t, err)
	defer f.Close()
	pw, err = readPassword(f, &prompt)
	require.NoError(t, err)
	assert.Equal(t, "from-file", pw, "regular files are not terminals")
}

func TestReadLine(t *testing.T) {
	line, err := readLine(strings.NewReader("s3cret\r\nrest"))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", line)

	line, err = readLine(strings.NewReader("no-newline"))
	require.NoError(t, err)
	assert.Equal(t, "no-newline", line)

	_, err = readLine(strings.NewReader(""))
	assert.Error(t, err)
}

func TestConfigCommands(t *testing.T) {
	home := t.TempDir()

	out, err := run(t, home, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "config.yaml")+"\n", out)

	_, err = run(t, home, "config", "init")
	require.NoError(t, err)
	_, err = run(t, home, "config", "init")
	assert.ErrorContains(t, err, "already exists")

	_, err = run(t, home, "config", "set", "gateway.port", "19000")
	require.NoError(t, err)
	out, err = run(t, home, "config", "get", "gateway.port")
	require.NoError(t, err)
	assert.Equal(t, "19000\n", out)

	out, err = run(t, home, "config", "validate")
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)

	_, err = run(t, home, "config", "set", "gateway.bind", "everywhere")
	require.NoError(t, err)
	out, err = run(t, home, "config", "validate")
	assert.Error(t, err)
	assert.Contains(t, out, "gateway.bind")

	_, err = run(t, home, "config", "unset", "gateway.bind")
	require.NoError(t, err)
	_, err = run(t, home, "config", "get", "gateway.bind")
	assert.ErrorContains(t, err, "not found")
}

func TestConversationsOffline_NoSnapshot(t *testing.T) {
	home := t.TempDir()
	_, err := run(t, home, "conversations", "--offline")
	assert.ErrorContains(t, err, "no saved conversation list")
	_, err = os.Stat(filepath.Join(home, "data", "agentdesk.db"))
	assert.NoError(t, err)
}

func TestRunRequiresLogin(t *testing.T) {
	home := t.TempDir()
	_, err := run(t, home, "run", "--no-gateway")
	assert.ErrorContains(t, err, "agentdesk login")

	out, err := run(t, home, "whoami")
	assert.ErrorContains(t, err, "not signed in")
	assert.Empty(t, out)
}

func TestWatchSession_ExpiryCancelsRun(t *testing.T) {
	log = logging.New(nil, "silent")
	a := &app{expired: make(chan struct{})}
	ctx, release := a.watchSession(context.Background())
	defer release()

	a.expireSession()
	a.expireSession()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled after session expiry")
	}
	assert.True(t, errors.Is(context.Cause(ctx), api.ErrSessionExpired))
	assert.ErrorIs(t, sessionExpired(), api.ErrSessionExpired)
	assert.Contains(t, sessionExpired().Error(), "agentdesk login")
}

func TestWatchSession_ReleaseIsNotExpiry(t *testing.T) {
	a := &app{expired: make(chan struct{})}
	ctx, release := a.watchSession(context.Background())
	release()

	<-ctx.Done()
	assert.False(t, errors.Is(context.Cause(ctx), api.ErrSessionExpired))
}

func TestParseKind(t *testing.T) {
	kind, err := parseKind("Life")
	require.NoError(t, err)
	assert.Equal(t, domain.ApplicationLife, kind)
	_, err = parseKind("car")
	assert.ErrorContains(t, err, "unknown catalog")
}

func TestApplicationsRequireLogin(t *testing.T) {
	home := t.TempDir()
	_, err := run(t, home, "applications", "--catalog", "life")
	assert.ErrorContains(t, err, "not signed in")

	_, err = run(t, home, "applications", "--catalog", "car")
	assert.ErrorContains(t, err, "unknown catalog")

	_, err = run(t, home, "dashboard")
	assert.ErrorContains(t, err, "not signed in")
}

func TestPrintApplication(t *testing.T) {
	var out bytes.Buffer
	printApplication(&out, domain.Application{
		ID:                "lib-2",
		FormName:          "LIB Family Cover",
		Status:            domain.ApplicationUnderReview,
		Customer:          domain.Applicant{Name: "David Mugisha", PhoneNumber: "+2564567890"},
		ConversationID:    "c202",
		VerificationFlags: map[string]bool{"medical_checked": false, "id_verified": true},
		StatusHistory:     []domain.StatusTransition{{FromStatus: "SUBMITTED", ToStatus: "UNDER_REVIEW", Notes: "medical"}},
		Notes:             []domain.ApplicationNote{{CreatedBy: "James", Content: "awaiting records"}},
	})
	got := out.String()
	assert.Contains(t, got, "conversation c202")
	assert.Contains(t, got, "checks: id_verified=yes medical_checked=no")
	assert.Contains(t, got, "SUBMITTED -> UNDER_REVIEW medical")
	assert.Contains(t, got, "James: awaiting records")

	out.Reset()
	printApplications(&out, nil)
	assert.Equal(t, "no applications\n", out.String())
}

func TestPrintDashboard(t *testing.T) {
	var out bytes.Buffer
	printDashboard(&out, domain.Dashboard{
		Stats:       domain.DashboardStats{PendingConversations: 8, ActiveConversations: 15, ResolvedConversations: 42},
		Queue:       domain.QueueMetrics{CurrentQueue: 8, AverageWaitTime: 4.5, ServiceLevel: 92},
		Performance: domain.Performance{ConversationsHandled: domain.Metric{Current: 42, Previous: 38, Trend: domain.TrendUp}},
		Agents:      domain.AgentPerformance{TotalConversations: 254, ByAgent: []domain.AgentStats{{Name: "Jane Doe", Conversations: 78}}},
		Period:      "currentMonth",
	})
	got := out.String()
	assert.Contains(t, got, "8 pending, 15 active, 42 resolved")
	assert.Contains(t, got, "Queue: 8 waiting, 4.5m average wait, 92% within SLA")
	assert.Contains(t, got, "↑ +10.5%")
	assert.Contains(t, got, "Agents (currentMonth, 254 conversations)")
	assert.Contains(t, got, "Jane Doe")
}
