package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// snapshotStore is implemented by Store backends that can serialize
// their full contents to/from a single file (persistence/databases's
// MapStore via modernc.org/sqlite); asserted against at call time so
// Coordinator's own type stays backend-agnostic.
type snapshotStore interface {
	SavePath(ctx context.Context, path string) error
	LoadPath(ctx context.Context, path string) error
}

// agentConfigFile is the side file persisted next to a snapshot,
// the agent-level state named in the EXTERNAL INTERFACES section of
// SPEC_FULL.md's persisted state layout.
type agentConfigFile struct {
	AgentName                string `json:"agent_name"`
	ModelName                string `json:"model_name"`
	MemoryModelName           string `json:"memory_model_name"`
	TimezoneStr               string `json:"timezone_str"`
	ActivePersonaName         string `json:"active_persona_name"`
	IncludeRecentScreenshots  bool   `json:"include_recent_screenshots"`
	IsScreenMonitor           bool   `json:"is_screen_monitor"`
	BackupType                string `json:"backup_type"`
	BackupTimestamp           string `json:"backup_timestamp"`
	ConnectionInfo            string `json:"connection_info,omitempty"`
}

const snapshotFileName = "store.sqlite3"
const agentConfigFileName = "agent_config.json"

// SavePath snapshots the Store plus the agent's configuration state
// into dir, creating it if necessary (spec §6 persisted state layout).
func (c *Coordinator) SavePath(ctx context.Context, dir string) error {
	snap, ok := c.store.(snapshotStore)
	if !ok {
		return fmt.Errorf("coordinator: save path: store backend does not support snapshotting")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("coordinator: save path: mkdir %s: %w", dir, err)
	}
	if err := snap.SavePath(ctx, filepath.Join(dir, snapshotFileName)); err != nil {
		return fmt.Errorf("coordinator: save path: store: %w", err)
	}

	c.mu.RLock()
	cfgFile := agentConfigFile{
		AgentName:               c.cfg.Agent.AgentName,
		ModelName:               c.cfg.Agent.ModelName,
		MemoryModelName:          c.cfg.MemoryModelName,
		TimezoneStr:              c.cfg.TimezoneStr,
		ActivePersonaName:        c.activePersonaName,
		IncludeRecentScreenshots: c.cfg.IncludeRecentScreenshots,
		IsScreenMonitor:          c.cfg.Agent.IsScreenMonitor,
		BackupType:               "sqlite",
		BackupTimestamp:          time.Now().UTC().Format(time.RFC3339),
	}
	c.mu.RUnlock()

	data, err := json.MarshalIndent(cfgFile, "", "  ")
	if err != nil {
		return fmt.Errorf("coordinator: save path: marshal agent config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, agentConfigFileName), data, 0o644); err != nil {
		return fmt.Errorf("coordinator: save path: write agent config: %w", err)
	}
	return nil
}

// LoadPath restores the Store and agent configuration state previously
// written by SavePath, rebuilding every LLM client to match.
func (c *Coordinator) LoadPath(ctx context.Context, dir string) error {
	snap, ok := c.store.(snapshotStore)
	if !ok {
		return fmt.Errorf("coordinator: load path: store backend does not support snapshotting")
	}
	if err := snap.LoadPath(ctx, filepath.Join(dir, snapshotFileName)); err != nil {
		return fmt.Errorf("coordinator: load path: store: %w", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, agentConfigFileName))
	if err != nil {
		return fmt.Errorf("coordinator: load path: read agent config: %w", err)
	}
	var cfgFile agentConfigFile
	if err := json.Unmarshal(data, &cfgFile); err != nil {
		return fmt.Errorf("coordinator: load path: unmarshal agent config: %w", err)
	}

	loc, err := time.LoadLocation(cfgFile.TimezoneStr)
	if err != nil {
		loc = time.UTC
	}

	c.mu.Lock()
	c.cfg.Agent.AgentName = cfgFile.AgentName
	c.cfg.Agent.ModelName = cfgFile.ModelName
	c.cfg.MemoryModelName = cfgFile.MemoryModelName
	c.cfg.TimezoneStr = cfgFile.TimezoneStr
	c.cfg.IncludeRecentScreenshots = cfgFile.IncludeRecentScreenshots
	c.cfg.Agent.IsScreenMonitor = cfgFile.IsScreenMonitor
	c.activePersonaName = cfgFile.ActivePersonaName
	c.timezone = loc
	c.mu.Unlock()

	if err := c.rebuildAgents(); err != nil {
		return fmt.Errorf("coordinator: load path: rebuild agents: %w", err)
	}
	c.wireRouterAgents()
	c.wireReflexionAgents()
	return nil
}
