package daemon

import (
	"context"
	"log/slog"

	"daqbridge/internal/attr"
	"daqbridge/internal/device"
	"daqbridge/internal/logging"
	"daqbridge/internal/metrics"
	"daqbridge/internal/table"
)

// BuildEditors creates one editor per catalog table, seeded with the words
// the device reports now. A table the device cannot report starts empty and
// in error; the poller reloads it once the device answers.
func BuildEditors(ctx context.Context, catalog *table.Catalog, sender table.Sender, reg *attr.Registry, prefix string, logger *slog.Logger, m *metrics.Metrics) ([]*table.Editor, error) {
	if catalog == nil {
		return nil, nil
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	editors := make([]*table.Editor, 0, len(catalog.Tables))
	for _, def := range catalog.Tables {
		schema, err := def.Schema()
		if err != nil {
			return nil, err
		}
		words, fetchErr := sender.Send(ctx, device.GetMultiline{Field: def.Name})
		if fetchErr != nil {
			words = nil
			logger.Warn("initial table fetch failed",
				logging.String(logging.FieldEventType, "table_fetch_failed"),
				logging.String(logging.FieldTable, def.Name),
				logging.String(logging.FieldErrorHint, "the table stays empty until the device answers"),
				logging.Error(fetchErr),
			)
		}
		editor, err := table.NewEditor(def.Name, schema, words, table.EditorOptions{
			Prefix:  prefix,
			Sender:  sender,
			Logger:  logger,
			Metrics: m,
		})
		if err != nil {
			return nil, err
		}
		if fetchErr != nil {
			editor.MarkInError(fetchErr)
		}
		if reg != nil {
			if err := reg.Add(editor.Attributes()...); err != nil {
				return nil, err
			}
		}
		editors = append(editors, editor)
	}
	return editors, nil
}
