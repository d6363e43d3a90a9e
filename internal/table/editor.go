package table

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"daqbridge/internal/attr"
	"daqbridge/internal/device"
	"daqbridge/internal/logging"
	"daqbridge/internal/metrics"
	"daqbridge/internal/services"
)

// Sender delivers control commands to the device.
type Sender interface {
	Send(ctx context.Context, cmd device.Command) ([]string, error)
}

// Editor owns the attributes of one table and runs its edit state machine.
//
// The mode attribute gates both paths that touch the columns: device
// refreshes apply only in View and external field writes validate only in
// Edit.
type Editor struct {
	name    string
	prefix  string
	schema  *Schema
	sender  Sender
	logger  *slog.Logger
	metrics *metrics.Metrics

	mode    *attr.Attribute
	index   *attr.Attribute
	fields  map[string]*attr.Attribute
	scalars map[string]*attr.Attribute
	order   []string

	mu        sync.Mutex
	last      []Column
	lastWords []string
	inError   error
}

// EditorOptions configures NewEditor.
type EditorOptions struct {
	// Prefix is prepended to every attribute name, e.g. "DAQ".
	Prefix  string
	Sender  Sender
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// AttributeBase converts a device table name into its attribute namespace:
// "SEQ1.TABLE" with prefix "DAQ" becomes "DAQ:SEQ1:TABLE".
func AttributeBase(prefix, name string) string {
	base := strings.ReplaceAll(name, ".", ":")
	if prefix == "" {
		return base
	}
	return prefix + ":" + base
}

// NewEditor builds the attributes for one table and seeds them from the
// initial device words. Invalid initial words mark the table in error.
func NewEditor(name string, schema *Schema, initial []string, opts EditorOptions) (*Editor, error) {
	if schema == nil {
		return nil, fmt.Errorf("%w: table %s has no schema", ErrSchema, name)
	}
	if opts.Sender == nil {
		return nil, services.Wrap(services.ErrConfiguration, "table", "new editor", "no device sender for "+name, nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	e := &Editor{
		name:    name,
		prefix:  AttributeBase(opts.Prefix, name),
		schema:  schema,
		sender:  opts.Sender,
		logger:  logger.With(logging.String(logging.FieldTable, name)),
		metrics: opts.Metrics,
		fields:  make(map[string]*attr.Attribute),
		scalars: make(map[string]*attr.Attribute),
	}

	columns, err := Unpack(schema, initial)
	if err != nil {
		e.inError = err
		columns = emptyColumns(schema)
		e.logger.Warn("initial table contents rejected",
			logging.String(logging.FieldEventType, "table_initial_invalid"),
			logging.String(logging.FieldErrorHint, "check the table catalog matches the device firmware"),
			logging.Error(err),
		)
	} else {
		e.lastWords = append([]string(nil), initial...)
	}
	e.last = columns
	rows := rowCount(columns)

	for _, col := range columns {
		fieldName := col.Field.Name
		e.order = append(e.order, fieldName)
		e.fields[fieldName] = attr.New(e.prefix+":"+fieldName, col.Values,
			attr.WithValidator(func(string, any) bool { return e.ValidateWrite() }),
			attr.WithOnUpdate(func(ctx context.Context, _ any) error {
				e.UpdateScalar(ctx, fieldName)
				return nil
			}),
			attr.WithDescription(col.Field.Description),
		)
		scalarOpts := []attr.Option{attr.WithDescription("value of " + fieldName + " at INDEX")}
		if col.Field.Kind == KindEnum {
			scalarOpts = append(scalarOpts, attr.WithLabels(col.Field.Labels...))
		}
		e.scalars[fieldName] = attr.New(e.prefix+":"+fieldName+":SCALAR", int64(0), scalarOpts...)
	}

	e.mode = attr.New(e.prefix+":MODE", ModeView.String(),
		attr.WithOnUpdate(e.UpdateMode),
		attr.WithDescription("VIEW, EDIT, SUBMIT or DISCARD"),
	)
	e.index = attr.New(e.prefix+":INDEX", int64(0),
		attr.WithLimits(0, float64(rows-1)),
		attr.WithOnUpdate(func(ctx context.Context, _ any) error {
			e.UpdateIndex(ctx)
			return nil
		}),
		attr.WithDescription("row selected for the SCALAR attributes"),
	)
	e.UpdateIndex(context.Background())
	return e, nil
}

func emptyColumns(schema *Schema) []Column {
	fields := schema.Fields()
	columns := make([]Column, len(fields))
	for i, f := range fields {
		columns[i] = Column{Field: f, Values: []int64{}}
	}
	return columns
}

func rowCount(columns []Column) int {
	if len(columns) == 0 {
		return 0
	}
	return len(columns[0].Values)
}

// Name returns the device table name.
func (e *Editor) Name() string { return e.name }

// Schema returns the table schema.
func (e *Editor) Schema() *Schema { return e.schema }

// Attributes returns every attribute the editor owns.
func (e *Editor) Attributes() []*attr.Attribute {
	out := []*attr.Attribute{e.mode, e.index}
	for _, name := range e.order {
		out = append(out, e.fields[name], e.scalars[name])
	}
	return out
}

// Mode returns the current mode and whether it is recognised.
func (e *Editor) Mode() (Mode, bool) {
	return ParseMode(attr.Text(e.mode.Get()))
}

// ValidateWrite decides whether an external write to a field attribute may
// proceed. Only Edit accepts writes. An unrecognised mode also raises an
// invalid alarm on the mode attribute.
func (e *Editor) ValidateWrite() bool {
	mode, ok := e.Mode()
	if !ok {
		e.logger.Warn("table mode not recognised",
			logging.String(logging.FieldEventType, "table_mode_invalid"),
			logging.String(logging.FieldErrorHint, "set MODE to VIEW, EDIT, SUBMIT or DISCARD"),
			logging.Any(logging.FieldMode, e.mode.Get()),
		)
		e.mode.SetAlarm(attr.Invalid, attr.AlarmUDF)
		return false
	}
	return mode == ModeEdit
}

// UpdateMode reacts to a write of the mode attribute. Submit and Discard run
// to completion and return the mode to View quietly. Errors are contained.
func (e *Editor) UpdateMode(ctx context.Context, value any) error {
	mode, ok := ParseMode(attr.Text(value))
	if !ok {
		e.logger.Warn("ignoring unknown table mode",
			logging.String(logging.FieldEventType, "table_mode_invalid"),
			logging.String(logging.FieldErrorHint, "set MODE to VIEW, EDIT, SUBMIT or DISCARD"),
			logging.Any(logging.FieldMode, value),
		)
		e.mode.SetAlarm(attr.Invalid, attr.AlarmUDF)
		return nil
	}
	ctx = services.WithTable(ctx, e.name)
	switch mode {
	case ModeSubmit:
		e.submit(ctx)
	case ModeDiscard:
		e.discard(ctx)
	default:
		e.logger.Debug("table mode changed", logging.String(logging.FieldMode, mode.String()))
	}
	return nil
}

func (e *Editor) submit(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	columns := e.currentColumns()
	words, err := Pack(e.schema.RowWords(), columns)
	if err == nil {
		_, err = e.sender.Send(ctx, device.PutTable{Field: e.name, Words: words})
	}
	e.metrics.RecordTableSubmit(e.name, err)

	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, e.logger), "table submit failed",
			"table_submit_failed",
			logging.String(logging.FieldErrorHint, "the device rejected the table or is unreachable; fields were restored"),
			logging.Error(err),
		)
		if e.inError == nil {
			e.publishLocked(ctx, e.last)
		}
	} else {
		e.last = columns
		e.lastWords = words
		e.logger.Info("table submitted", logging.Int("rows", rowCount(columns)))
	}
	e.setViewQuietly(ctx)
}

func (e *Editor) discard(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	words, err := e.sender.Send(ctx, device.GetMultiline{Field: e.name})
	if err == nil {
		var columns []Column
		columns, err = Unpack(e.schema, words)
		if err == nil {
			e.last = columns
			e.lastWords = words
			e.inError = nil
			e.publishLocked(ctx, columns)
		}
	}
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, e.logger), "table discard failed",
			"table_discard_failed",
			logging.String(logging.FieldErrorHint, "fields keep their edited values until the device answers"),
			logging.Error(err),
		)
	}
	e.setViewQuietly(ctx)
}

func (e *Editor) setViewQuietly(ctx context.Context) {
	if err := e.mode.Set(ctx, ModeView.String(), attr.Quiet()); err != nil {
		e.logger.Error("reset table mode", logging.Error(err))
	}
}

// UpdateTable applies words reported by the device. The words are always
// cached; the fields are republished only while in View.
func (e *Editor) UpdateTable(ctx context.Context, words []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	columns, err := Unpack(e.schema, words)
	if err != nil {
		e.inError = err
		return fmt.Errorf("update table %s: %w", e.name, err)
	}
	e.last = columns
	e.lastWords = append([]string(nil), words...)
	e.inError = nil

	if mode, ok := e.Mode(); !ok || mode != ModeView {
		return nil
	}
	e.publishLocked(ctx, columns)
	return nil
}

// MarkInError records that the device could not report the table. A later
// failed submit then leaves the fields untouched.
func (e *Editor) MarkInError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		err = fmt.Errorf("%w: table %s reported in error", services.ErrDevice, e.name)
	}
	e.inError = err
}

// InError returns the error recorded by MarkInError or a failed refresh.
func (e *Editor) InError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inError
}

func (e *Editor) publishLocked(ctx context.Context, columns []Column) {
	for _, col := range columns {
		a, ok := e.fields[col.Field.Name]
		if !ok {
			continue
		}
		if err := a.Set(ctx, col.Values, attr.Quiet()); err != nil {
			e.logger.Error("publish table field", logging.String("field", col.Field.Name), logging.Error(err))
		}
	}
	e.index.SetLimits(0, float64(rowCount(columns)-1))
	e.UpdateIndex(ctx)
}

func (e *Editor) currentColumns() []Column {
	fields := e.schema.Fields()
	columns := make([]Column, len(fields))
	for i, f := range fields {
		values, err := attr.Ints(e.fields[f.Name].Get())
		if err != nil {
			values = nil
		}
		columns[i] = Column{Field: f, Values: values}
	}
	return columns
}

// UpdateIndex reprojects every scalar attribute at the current index.
func (e *Editor) UpdateIndex(ctx context.Context) {
	for _, name := range e.order {
		e.UpdateScalar(ctx, name)
	}
}

// UpdateScalar publishes the value of one field at the current index. An
// index outside the table publishes zero with an invalid alarm.
func (e *Editor) UpdateScalar(ctx context.Context, field string) {
	scalar, ok := e.scalars[field]
	if !ok {
		return
	}
	values, _ := attr.Ints(e.fields[field].Get())
	idx, err := attr.Int(e.index.Get())
	if err == nil && idx >= 0 && idx < int64(len(values)) {
		err = scalar.Set(ctx, values[idx])
		if err == nil {
			return
		}
		// Enum scalars reject indices without a label.
		e.logger.Debug("scalar value rejected", logging.String("field", field), logging.Int64("index", idx), logging.Error(err))
	}
	if err := scalar.Set(ctx, int64(0), attr.WithSeverity(attr.Invalid, attr.AlarmUDF)); err != nil {
		e.logger.Error("publish table scalar", logging.String("field", field), logging.Error(err))
	}
}

// ColumnView is a rendered column for status output.
type ColumnView struct {
	Name   string   `json:"name"`
	Kind   Kind     `json:"kind"`
	Values []int64  `json:"values"`
	Labels []string `json:"labels,omitempty"`
}

// Snapshot is the state of one table for the CLI and API.
type Snapshot struct {
	Name    string       `json:"name"`
	Mode    string       `json:"mode"`
	Rows    int          `json:"rows"`
	Index   int64        `json:"index"`
	InError string       `json:"in_error,omitempty"`
	Columns []ColumnView `json:"columns"`
}

// Snapshot returns the published columns.
func (e *Editor) Snapshot() Snapshot {
	snap := Snapshot{Name: e.name, Mode: attr.Text(e.mode.Get())}
	if err := e.InError(); err != nil {
		snap.InError = err.Error()
	}
	snap.Index, _ = attr.Int(e.index.Get())
	for _, f := range e.schema.Fields() {
		values, _ := attr.Ints(e.fields[f.Name].Get())
		if len(values) > snap.Rows {
			snap.Rows = len(values)
		}
		snap.Columns = append(snap.Columns, ColumnView{Name: f.Name, Kind: f.Kind, Values: values, Labels: f.Labels})
	}
	return snap
}
