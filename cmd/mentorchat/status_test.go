package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/devroad/mentorchat/internal/auth"
	"github.com/devroad/mentorchat/internal/chat"
	"github.com/devroad/mentorchat/internal/db"
	"github.com/devroad/mentorchat/internal/models"
	"github.com/devroad/mentorchat/pkg/config"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input int64
		want  string
	}{
		{input: 0, want: "0 B"},
		{input: 1023, want: "1023 B"},
		{input: 1024, want: "1.0 KiB"},
		{input: 1536, want: "1.5 KiB"},
		{input: 1048576, want: "1.0 MiB"},
	}

	for _, tt := range tests {
		got := formatBytes(tt.input)
		if got != tt.want {
			t.Fatalf("formatBytes(%d) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestDirUsage(t *testing.T) {
	root := t.TempDir()

	nested := filepath.Join(root, "voice", "2026")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir nested: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "a.jpg"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("write a.jpg: %v", err)
	}
	if err := os.WriteFile(filepath.Join(nested, "b.webm"), []byte("go"), 0o644); err != nil {
		t.Fatalf("write b.webm: %v", err)
	}

	bytes, files, err := dirUsage(root)
	if err != nil {
		t.Fatalf("dirUsage returned error: %v", err)
	}
	if files != 2 || bytes != 7 {
		t.Fatalf("dirUsage = (%d bytes, %d files), want (7, 2)", bytes, files)
	}
}

func TestParseStatusArgs(t *testing.T) {
	opts, err := parseStatusArgs([]string{"--json"})
	if err != nil {
		t.Fatalf("parseStatusArgs returned error: %v", err)
	}
	if !opts.JSON {
		t.Fatalf("parseStatusArgs JSON = false, want true")
	}
	if _, err := parseStatusArgs([]string{"--bad"}); err == nil {
		t.Fatalf("parseStatusArgs expected error for unknown flag")
	}
}

func seedDatabase(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Environment:     "development",
		Port:            "8080",
		DatabasePath:    filepath.Join(dir, "status.db"),
		FileStoragePath: filepath.Join(dir, "uploads"),
		JWTSecret:       "status-test",
	}
	if err := os.MkdirAll(cfg.FileStoragePath, 0o755); err != nil {
		t.Fatalf("mkdir uploads: %v", err)
	}

	database, err := db.New(cfg.DatabasePath)
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	defer database.Close()
	conn := database.GetConn()

	svc := auth.New(conn, cfg.JWTSecret)
	learner, err := svc.CreateUser("learner", "password123", "", models.RoleLearner)
	if err != nil {
		t.Fatalf("create learner: %v", err)
	}
	mentor, err := svc.CreateUser("mentor", "password123", "", models.RoleMentor)
	if err != nil {
		t.Fatalf("create mentor: %v", err)
	}

	ctx := context.Background()
	conv, err := chat.NewDirectory(conn, nil).GetOrCreate(ctx, learner.ID, mentor.ID)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	store := chat.NewMessageStore(conn, nil)
	url := "/api/files/image/x.jpg"
	drafts := []models.Draft{
		{Kind: models.KindText, Body: "hi"},
		{Kind: models.KindText, Body: "hello"},
		{Kind: models.KindImage, MediaURL: &url},
	}
	for _, d := range drafts {
		if _, err := store.Append(ctx, conv.ID, learner.ID, d); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	return cfg
}

func TestCollectStatus(t *testing.T) {
	cfg := seedDatabase(t)

	status := collectStatus(cfg)
	if !status.DBMetricsReady {
		t.Fatalf("metrics not ready: %s", status.DBWarning)
	}
	if status.Users() != 2 || status.UsersByRole["mentor"] != 1 {
		t.Fatalf("unexpected users by role: %#v", status.UsersByRole)
	}
	if status.Conversations != 1 {
		t.Fatalf("Conversations = %d, want 1", status.Conversations)
	}
	if status.Messages != 3 || status.MessagesByKind[string(models.KindImage)] != 1 {
		t.Fatalf("unexpected messages by kind: %#v", status.MessagesByKind)
	}
	if status.MessagesLast24h != 3 {
		t.Fatalf("MessagesLast24h = %d, want 3", status.MessagesLast24h)
	}
	if status.LatestActivityAt == "" {
		t.Fatalf("LatestActivityAt is empty")
	}

	var out bytes.Buffer
	printStatus(&out, status)
	if !strings.Contains(out.String(), "Conversations      : 1") {
		t.Fatalf("status output misses conversation count:\n%s", out.String())
	}
}

func TestCollectStatusWithoutDatabase(t *testing.T) {
	cfg := &config.Config{
		DatabasePath:    filepath.Join(t.TempDir(), "missing.db"),
		FileStoragePath: t.TempDir(),
	}
	status := collectStatus(cfg)
	if status.DBMetricsReady {
		t.Fatalf("metrics ready without a database")
	}
	if !strings.HasPrefix(status.DBWarning, "database unavailable") {
		t.Fatalf("DBWarning = %q", status.DBWarning)
	}
}

func TestPrintStatusJSON(t *testing.T) {
	status := appStatus{
		GeneratedAt:     time.Date(2026, 2, 18, 10, 0, 0, 0, time.UTC),
		Environment:     "development",
		Port:            "8080",
		DatabasePath:    "/tmp/mentorchat.db",
		FileStoragePath: "/tmp/uploads",
		UsersByRole:     map[string]int64{"learner": 2, "mentor": 1},
		DBMetricsReady:  true,
	}

	var out bytes.Buffer
	if err := printStatusJSON(&out, status); err != nil {
		t.Fatalf("printStatusJSON returned error: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(out.Bytes(), &payload); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if payload["environment"] != "development" {
		t.Fatalf("unexpected environment: %#v", payload["environment"])
	}
	metrics := payload["metrics"].(map[string]any)
	if metrics["users"] != float64(3) {
		t.Fatalf("unexpected users: %#v", metrics["users"])
	}
}

func TestRoleCommand(t *testing.T) {
	cfg := seedDatabase(t)

	var out bytes.Buffer
	if err := runRole(cfg, &out, []string{"learner", "Mentor"}); err != nil {
		t.Fatalf("runRole: %v", err)
	}
	if got := out.String(); got != "learner (id 1) is now mentor\n" {
		t.Fatalf("unexpected output %q", got)
	}

	out.Reset()
	if err := runRole(cfg, &out, []string{"--create", "boss", "password123", "admin", "The", "Boss"}); err != nil {
		t.Fatalf("runRole --create: %v", err)
	}
	if !strings.HasPrefix(out.String(), "boss (id 3) is now admin") {
		t.Fatalf("unexpected output %q", out.String())
	}

	if err := runRole(cfg, &out, []string{"nobody", "mentor"}); err == nil {
		t.Fatalf("expected error for unknown user")
	}
	if _, err := parseRoleArgs([]string{"learner", "owner"}); err == nil {
		t.Fatalf("expected error for unknown role")
	}
	if _, err := parseRoleArgs([]string{"--create", "x"}); err == nil {
		t.Fatalf("expected usage error")
	}
}

func TestRunCommandRejectsUnknown(t *testing.T) {
	if err := runCommand(&config.Config{}, nil, []string{"frobnicate"}); err == nil {
		t.Fatalf("expected error for unknown command")
	}
}
