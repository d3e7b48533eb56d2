package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wricardo/command-quest/game/engine"
	"github.com/wricardo/command-quest/game/service"
	"github.com/wricardo/command-quest/logging"
)

var (
	ErrConfigNotFound = service.ErrPackNotFound
	ErrInvalidConfig  = errors.New("invalid level pack")
)

// BuiltinPack is the name of the pack compiled into the binary
const BuiltinPack = "tutorial"

// Manager handles level pack loading and caching
type Manager struct {
	packDir     string
	defaultPack *engine.LevelPack
	packs       map[string]*engine.LevelPack
	logger      *zap.Logger
	mu          sync.RWMutex
}

// NewManager creates a level pack manager reading JSON packs from packDir
func NewManager(packDir string, logger *zap.Logger) (*Manager, error) {
	if _, err := os.Stat(packDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("level pack directory does not exist: %s", packDir)
	}
	logger = logging.OrNop(logger)

	m := &Manager{
		packDir: packDir,
		packs:   make(map[string]*engine.LevelPack),
		logger:  logger,
	}
	m.loadDefaultPack()
	return m, nil
}

// packFile maps a pack name to its file, rejecting names that would escape
// the pack directory
func (m *Manager) packFile(name string) (string, error) {
	name = strings.TrimSuffix(name, ".json")
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: bad pack name %q", ErrInvalidConfig, name)
	}
	return filepath.Join(m.packDir, name+".json"), nil
}

// LoadPack loads a level pack by name. The built-in tutorial pack is used
// when no file of that name exists.
func (m *Manager) LoadPack(name string) (*engine.LevelPack, error) {
	name = strings.TrimSuffix(name, ".json")

	m.mu.RLock()
	if pack, exists := m.packs[name]; exists {
		m.mu.RUnlock()
		return pack, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if pack, exists := m.packs[name]; exists {
		return pack, nil
	}

	path, err := m.packFile(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if name == BuiltinPack {
				pack := engine.DefaultPack()
				m.packs[name] = pack
				return pack, nil
			}
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, name)
		}
		return nil, fmt.Errorf("failed to read level pack: %w", err)
	}

	var pack engine.LevelPack
	if err := json.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, name, err)
	}
	if err := engine.ValidatePack(&pack); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, name, err)
	}

	m.lint(name, &pack)
	m.packs[name] = &pack
	m.logger.Info("level pack loaded", zap.String("pack", name), zap.Int("levels", len(pack.Levels)))
	return &pack, nil
}

// lint logs warnings for levels that load but may not play as intended
func (m *Manager) lint(name string, pack *engine.LevelPack) {
	for i := range pack.Levels {
		for _, w := range engine.LintLevel(&pack.Levels[i]) {
			m.logger.Warn("level pack lint",
				zap.String("pack", name),
				zap.Int("level_id", pack.Levels[i].ID),
				zap.String("warning", w))
		}
	}
}

// ListPacks returns information about all available level packs
func (m *Manager) ListPacks() ([]*service.PackInfo, error) {
	entries, err := os.ReadDir(m.packDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read level pack directory: %w", err)
	}

	var packs []*service.PackInfo
	hasBuiltin := false

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".json")

		pack, err := m.LoadPack(name)
		if err != nil {
			m.logger.Warn("skipping level pack", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		if name == BuiltinPack {
			hasBuiltin = true
		}
		packs = append(packs, &service.PackInfo{
			Filename:    entry.Name(),
			PackID:      name,
			Name:        pack.Name,
			Description: pack.Description,
			Levels:      len(pack.Levels),
		})
	}

	if !hasBuiltin {
		builtin := engine.DefaultPack()
		packs = append(packs, &service.PackInfo{
			PackID:      BuiltinPack,
			Name:        builtin.Name,
			Description: builtin.Description,
			Levels:      len(builtin.Levels),
			Builtin:     true,
		})
	}

	sort.Slice(packs, func(i, j int) bool { return packs[i].PackID < packs[j].PackID })
	return packs, nil
}

// GetDefault returns the default level pack
func (m *Manager) GetDefault() *engine.LevelPack {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultPack
}

// SetDefault sets the default level pack by name
func (m *Manager) SetDefault(name string) error {
	pack, err := m.LoadPack(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultPack = pack
	return nil
}

// RefreshCache drops cached packs so the next load reads them from disk
func (m *Manager) RefreshCache() {
	m.mu.Lock()
	m.packs = make(map[string]*engine.LevelPack)
	m.mu.Unlock()

	m.loadDefaultPack()
}

// loadDefaultPack prefers the tutorial pack, from disk or built in
func (m *Manager) loadDefaultPack() {
	pack, err := m.LoadPack(BuiltinPack)
	if err != nil {
		m.logger.Warn("falling back to built-in tutorial pack", zap.Error(err))
		pack = engine.DefaultPack()
	}

	m.mu.Lock()
	m.defaultPack = pack
	m.mu.Unlock()
}

// SavePack validates a level pack and writes it to disk
func (m *Manager) SavePack(name string, pack *engine.LevelPack) error {
	if err := engine.ValidatePack(pack); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	path, err := m.packFile(name)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(pack, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal level pack: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write level pack: %w", err)
	}

	m.lint(name, pack)
	m.mu.Lock()
	m.packs[strings.TrimSuffix(name, ".json")] = pack
	m.mu.Unlock()
	return nil
}
