package project

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/goevery/tracker/internal/realtime"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const progressChunkSize = 10

// Importer applies a batch of already-parsed rows through the project
// service, pushing progress to the import's topic after every chunk.
// Progress is fire-and-forget: clients that subscribe late or disconnect
// simply miss updates and fall back to refetching the project list.
type Importer struct {
	logger   *zap.Logger
	projects *Service
}

func NewImporter(logger *zap.Logger, projects *Service) *Importer {
	return &Importer{
		logger,
		projects,
	}
}

// Start launches the import and returns its id immediately. The caller
// subscribes to import:<id> for progress.
func (i *Importer) Start(rows []CreateInput) string {
	importId := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()

	go i.run(importId, rows)

	return importId
}

func (i *Importer) run(importId string, rows []CreateInput) {
	ctx := context.Background()
	logger := i.logger.With(zap.String("importId", importId))

	total := len(rows)
	processed := 0

	for _, row := range rows {
		_, err := i.projects.Create(ctx, row)
		if err != nil {
			logger.Warn("import row failed", zap.Error(err))
		}

		processed++

		if processed%progressChunkSize == 0 && processed != total {
			i.projects.broadcaster.ImportProgressed(realtime.ImportProgress{
				ImportId:  importId,
				Processed: processed,
				Total:     total,
				Done:      false,
			})
		}
	}

	i.projects.broadcaster.ImportProgressed(realtime.ImportProgress{
		ImportId:  importId,
		Processed: processed,
		Total:     total,
		Done:      true,
	})

	logger.Info("import finished", zap.Int("rows", total))
}
