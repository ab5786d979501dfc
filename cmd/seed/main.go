package main

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"jarvis/internal/models"
	"jarvis/internal/repository"
	"jarvis/internal/service"
	"jarvis/pkg/config"
	"jarvis/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logger.Level, cfg.Logger.Format); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	appLogger := logger.Get()

	ctx := context.Background()
	repo, err := repository.Open(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to open snapshot store", zap.Error(err))
	}
	defer repo.Close()

	seedFile := os.Getenv("SEED_FILE")
	if seedFile == "" {
		seedFile = filepath.Join("cmd", "seed", "knowledge.yaml")
	}
	cacheFile := filepath.Join(filepath.Dir(seedFile), ".seed_cache.json")

	appLogger.Info("Starting knowledge seeding...", zap.String("file", seedFile))

	if err := seedKnowledge(ctx, seedFile, cacheFile, repo, appLogger); err != nil {
		appLogger.Fatal("Failed to seed knowledge", zap.Error(err))
	}

	appLogger.Info("Knowledge seeding completed successfully!")
}

// SeedFile is the YAML layout of curated knowledge.
type SeedFile struct {
	Entries []SeedEntry `yaml:"entries"`
}

type SeedEntry struct {
	Pattern  string  `yaml:"pattern"`
	Response string  `yaml:"response"`
	Score    float64 `yaml:"score"`
}

// defaultSeedScore is used when an entry has no score.
const defaultSeedScore = 0.7

// ProcessedFile represents a seed file already merged into the store
type ProcessedFile struct {
	FilePath    string    `json:"file_path"`
	FileHash    string    `json:"file_hash"`
	ProcessedAt time.Time `json:"processed_at"`
}

// CacheData stores information about processed files
type CacheData struct {
	ProcessedFiles map[string]ProcessedFile `json:"processed_files"` // key: file path
}

// loadCache loads the cache of processed files
func loadCache(cacheFile string) (*CacheData, error) {
	cache := &CacheData{
		ProcessedFiles: make(map[string]ProcessedFile),
	}

	data, err := os.ReadFile(cacheFile)
	if errors.Is(err, os.ErrNotExist) {
		return cache, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	if len(data) == 0 {
		return cache, nil
	}

	if err := json.Unmarshal(data, cache); err != nil {
		return nil, fmt.Errorf("failed to parse cache file: %w", err)
	}

	return cache, nil
}

// saveCache saves the cache of processed files
func saveCache(cacheFile string, cache *CacheData) error {
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	if err := os.WriteFile(cacheFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	return nil
}

// calculateFileHash calculates MD5 hash of a file
func calculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", fmt.Errorf("failed to calculate hash: %w", err)
	}

	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}

func loadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	return &seed, nil
}

func seedKnowledge(
	ctx context.Context,
	seedFile string,
	cacheFile string,
	repo repository.SnapshotRepository,
	logger *zap.Logger,
) error {
	cache, err := loadCache(cacheFile)
	if err != nil {
		logger.Warn("Failed to load cache, will process the seed file", zap.Error(err))
		cache = &CacheData{ProcessedFiles: make(map[string]ProcessedFile)}
	}

	fileHash, err := calculateFileHash(seedFile)
	if err != nil {
		return err
	}
	if cached, exists := cache.ProcessedFiles[seedFile]; exists && cached.FileHash == fileHash {
		logger.Info("Seed file already processed, skipping",
			zap.String("path", seedFile),
			zap.Time("processed_at", cached.ProcessedAt),
		)
		return nil
	}

	seed, err := loadSeedFile(seedFile)
	if err != nil {
		return err
	}

	snapshot, err := repo.Load(ctx)
	if errors.Is(err, repository.ErrSnapshotNotFound) {
		snapshot = &models.Snapshot{}
	} else if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	now := time.Now().UTC()
	created, updated := mergeSeed(snapshot, seed.Entries, now, logger)

	snapshot.Version++
	snapshot.SavedAt = now
	if err := repo.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	logger.Info("Seed merged",
		zap.Int("created", created),
		zap.Int("updated", updated),
		zap.Int("total_entries", len(snapshot.Entries)),
	)

	cache.ProcessedFiles[seedFile] = ProcessedFile{
		FilePath:    seedFile,
		FileHash:    fileHash,
		ProcessedAt: now,
	}
	if err := saveCache(cacheFile, cache); err != nil {
		logger.Warn("Failed to save cache", zap.Error(err))
	}
	return nil
}

// mergeSeed upserts seed entries by normalized pattern. Existing entries get the
// curated response and score but keep their id and usage count.
func mergeSeed(snapshot *models.Snapshot, entries []SeedEntry, now time.Time, logger *zap.Logger) (created, updated int) {
	index := make(map[string]int, len(snapshot.Entries))
	for i, e := range snapshot.Entries {
		index[e.Pattern] = i
	}

	for _, item := range entries {
		pattern := service.NormalizePattern(item.Pattern)
		response := strings.TrimSpace(item.Response)
		if pattern == "" || response == "" {
			logger.Warn("Skipping incomplete seed entry", zap.String("pattern", item.Pattern))
			continue
		}

		score := item.Score
		if score == 0 {
			score = defaultSeedScore
		}
		score = min(max(score, 0), 1)

		if i, ok := index[pattern]; ok {
			e := &snapshot.Entries[i]
			e.ResponseTemplate = response
			e.Score = score
			e.BaselineScore = score
			e.LastUpdated = now
			updated++
			continue
		}

		snapshot.Entries = append(snapshot.Entries, models.KnowledgeEntry{
			ID:               uuid.New(),
			Pattern:          pattern,
			ResponseTemplate: response,
			Score:            score,
			BaselineScore:    score,
			CreatedAt:        now,
			LastUpdated:      now,
		})
		index[pattern] = len(snapshot.Entries) - 1
		created++
	}
	return created, updated
}
