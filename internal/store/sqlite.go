package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"notes-tracker/internal/models"
)

// SQLiteStore implements NoteStore using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	mu        sync.RWMutex
	syncTimes map[string]time.Time
}

// NewSQLiteStore creates a new SQLite-based note store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:        db,
		syncTimes: make(map[string]time.Time),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Structured note contracts plus engine-derived status fields
	CREATE TABLE IF NOT EXISTS structured_notes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_name TEXT,
		isin TEXT UNIQUE,
		product_type TEXT NOT NULL,
		notional REAL NOT NULL DEFAULT 0,
		trade_date DATE,
		issue_date DATE,
		observation_start_date DATE,
		final_valuation_date DATE,
		coupon_rate REAL NOT NULL DEFAULT 0,
		coupon_payment_dates TEXT,
		coupon_barrier REAL,
		ko_type TEXT,
		ko_observation_frequency TEXT,
		ki_type TEXT,
		step_down_ko TEXT,
		memory_rates TEXT,
		current_status TEXT NOT NULL DEFAULT 'Not Observed Yet',
		ko_event_date DATE,
		ki_event_date DATE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Underlyings per note, ordered by seq for display
	CREATE TABLE IF NOT EXISTS note_underlyings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		note_id INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		ticker TEXT NOT NULL,
		spot_price REAL,
		ko_price REAL,
		ki_price REAL,
		strike_price REAL,
		last_close_price REAL,
		UNIQUE(note_id, seq),
		FOREIGN KEY (note_id) REFERENCES structured_notes(id)
	);

	-- Daily closing price snapshots; past rows are never mutated
	CREATE TABLE IF NOT EXISTS price_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ticker TEXT NOT NULL,
		date DATE NOT NULL,
		close REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(ticker, date)
	);

	-- Sync metadata table
	CREATE TABLE IF NOT EXISTS sync_metadata (
		data_type TEXT PRIMARY KEY,
		last_sync DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_ticker_date ON price_snapshots(ticker, date);
	CREATE INDEX IF NOT EXISTS idx_underlyings_note ON note_underlyings(note_id);
	CREATE INDEX IF NOT EXISTS idx_notes_status ON structured_notes(current_status);
	`

	_, err := s.db.Exec(schema)
	return err
}

const dateLayout = "2006-01-02"

func fmtDate(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.Format(dateLayout)
}

func fmtDatePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

func parseDate(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(dateLayout, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseDatePtr(s sql.NullString) *time.Time {
	t := parseDate(s)
	if t.IsZero() {
		return nil
	}
	return &t
}

// joinDates serializes dates as a comma-separated YYYY-MM-DD list.
func joinDates(dates []time.Time) string {
	parts := make([]string, 0, len(dates))
	for _, d := range dates {
		parts = append(parts, d.Format(dateLayout))
	}
	return strings.Join(parts, ", ")
}

func splitDates(s string) []time.Time {
	var dates []time.Time
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		t, err := time.Parse(dateLayout, part)
		if err != nil {
			continue
		}
		dates = append(dates, t)
	}
	return dates
}

// joinStepDown serializes a step-down schedule as "1:100.00, 2:98.00".
func joinStepDown(schedule []models.StepDownBarrier) string {
	parts := make([]string, 0, len(schedule))
	for _, e := range schedule {
		parts = append(parts, fmt.Sprintf("%d:%s", e.Period, strconv.FormatFloat(e.Level, 'f', -1, 64)))
	}
	return strings.Join(parts, ", ")
}

func splitStepDown(s string) []models.StepDownBarrier {
	var schedule []models.StepDownBarrier
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" || !strings.Contains(part, ":") {
			continue
		}
		fields := strings.SplitN(part, ":", 2)
		period, err1 := strconv.Atoi(strings.TrimSpace(fields[0]))
		level, err2 := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		if err1 != nil || err2 != nil {
			continue
		}
		schedule = append(schedule, models.StepDownBarrier{Period: period, Level: level})
	}
	return schedule
}

func joinRates(rates []float64) string {
	parts := make([]string, 0, len(rates))
	for _, r := range rates {
		parts = append(parts, strconv.FormatFloat(r, 'f', -1, 64))
	}
	return strings.Join(parts, ", ")
}

func splitRates(s string) []float64 {
	var rates []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		r, err := strconv.ParseFloat(part, 64)
		if err != nil {
			continue
		}
		rates = append(rates, r)
	}
	return rates
}

// SaveNote inserts or updates a note contract and returns its ID.
func (s *SQLiteStore) SaveNote(ctx context.Context, note *models.Note) (int64, error) {
	if note.Status == "" {
		note.Status = models.StatusNotYetObserved
	}

	if note.ID > 0 {
		_, err := s.db.ExecContext(ctx, `
			UPDATE structured_notes SET
				customer_name = ?, isin = ?, product_type = ?, notional = ?,
				trade_date = ?, issue_date = ?, observation_start_date = ?, final_valuation_date = ?,
				coupon_rate = ?, coupon_payment_dates = ?, coupon_barrier = ?,
				ko_type = ?, ko_observation_frequency = ?, ki_type = ?,
				step_down_ko = ?, memory_rates = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`,
			note.CustomerName, note.ISIN, string(note.Product), note.Notional,
			fmtDate(note.TradeDate), fmtDate(note.IssueDate), fmtDate(note.ObservationStart), fmtDate(note.FinalValuation),
			note.CouponRate, joinDates(note.CouponDates), note.CouponBarrier,
			string(note.KOType), string(note.ObservationFrequency), string(note.KIType),
			joinStepDown(note.StepDownKO), joinRates(note.MemoryRates),
			note.ID)
		if err != nil {
			return 0, fmt.Errorf("updating note: %w", err)
		}
		return note.ID, nil
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO structured_notes (
			customer_name, isin, product_type, notional,
			trade_date, issue_date, observation_start_date, final_valuation_date,
			coupon_rate, coupon_payment_dates, coupon_barrier,
			ko_type, ko_observation_frequency, ki_type,
			step_down_ko, memory_rates, current_status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		note.CustomerName, note.ISIN, string(note.Product), note.Notional,
		fmtDate(note.TradeDate), fmtDate(note.IssueDate), fmtDate(note.ObservationStart), fmtDate(note.FinalValuation),
		note.CouponRate, joinDates(note.CouponDates), note.CouponBarrier,
		string(note.KOType), string(note.ObservationFrequency), string(note.KIType),
		joinStepDown(note.StepDownKO), joinRates(note.MemoryRates), string(note.Status))
	if err != nil {
		return 0, fmt.Errorf("inserting note: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading note id: %w", err)
	}
	note.ID = id
	return id, nil
}

const noteColumns = `
	id, customer_name, isin, product_type, notional,
	trade_date, issue_date, observation_start_date, final_valuation_date,
	coupon_rate, coupon_payment_dates, coupon_barrier,
	ko_type, ko_observation_frequency, ki_type,
	step_down_ko, memory_rates, current_status, ko_event_date, ki_event_date`

func scanNote(scanner interface{ Scan(...interface{}) error }) (*models.Note, error) {
	var note models.Note
	var customer, isin, product sql.NullString
	var tradeDate, issueDate, obsStart, finalVal sql.NullString
	var couponDates, koType, koFreq, kiType, stepDown, memoryRates sql.NullString
	var status, koDate, kiDate sql.NullString
	var couponBarrier sql.NullFloat64

	err := scanner.Scan(
		&note.ID, &customer, &isin, &product, &note.Notional,
		&tradeDate, &issueDate, &obsStart, &finalVal,
		&note.CouponRate, &couponDates, &couponBarrier,
		&koType, &koFreq, &kiType,
		&stepDown, &memoryRates, &status, &koDate, &kiDate)
	if err != nil {
		return nil, err
	}

	note.CustomerName = customer.String
	note.ISIN = isin.String
	note.Product = models.ProductType(product.String)
	note.TradeDate = parseDate(tradeDate)
	note.IssueDate = parseDate(issueDate)
	note.ObservationStart = parseDate(obsStart)
	note.FinalValuation = parseDate(finalVal)
	note.CouponDates = splitDates(couponDates.String)
	note.CouponBarrier = couponBarrier.Float64
	note.KOType = models.KOType(koType.String)
	note.ObservationFrequency = models.Frequency(koFreq.String)
	note.KIType = models.KIType(kiType.String)
	note.StepDownKO = splitStepDown(stepDown.String)
	note.MemoryRates = splitRates(memoryRates.String)
	note.Status = models.Status(status.String)
	note.KOEventDate = parseDatePtr(koDate)
	note.KIEventDate = parseDatePtr(kiDate)

	return &note, nil
}

// GetNote fetches a note by ID.
func (s *SQLiteStore) GetNote(ctx context.Context, id int64) (*models.Note, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM structured_notes WHERE id = ?`, id)
	note, err := scanNote(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("note not found: %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying note: %w", err)
	}
	return note, nil
}

// GetNoteByISIN fetches a note by its ISIN.
func (s *SQLiteStore) GetNoteByISIN(ctx context.Context, isin string) (*models.Note, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM structured_notes WHERE isin = ?`, isin)
	note, err := scanNote(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("note not found: %s", isin)
	}
	if err != nil {
		return nil, fmt.Errorf("querying note: %w", err)
	}
	return note, nil
}

// ListNotes fetches notes matching the filter, newest first.
func (s *SQLiteStore) ListNotes(ctx context.Context, filter NoteFilter) ([]models.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM structured_notes WHERE 1=1`
	var args []interface{}

	if filter.Product != "" {
		query += ` AND product_type = ?`
		args = append(args, string(filter.Product))
	}
	if filter.Status != "" {
		query += ` AND current_status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Customer != "" {
		query += ` AND customer_name LIKE ?`
		args = append(args, "%"+filter.Customer+"%")
	}
	query += ` ORDER BY id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}
	defer rows.Close()

	var notes []models.Note
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning note: %w", err)
		}
		notes = append(notes, *note)
	}
	return notes, rows.Err()
}

// DeleteNote removes a note and its underlyings.
func (s *SQLiteStore) DeleteNote(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM note_underlyings WHERE note_id = ?`, id); err != nil {
		return fmt.Errorf("deleting underlyings: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM structured_notes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting note: %w", err)
	}
	return nil
}

// UpdateDerived writes the engine-derived status fields. The engine is
// the sole caller; these fields are read-only everywhere else.
func (s *SQLiteStore) UpdateDerived(ctx context.Context, id int64, status models.Status, koDate, kiDate *time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE structured_notes
		SET current_status = ?, ko_event_date = ?, ki_event_date = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		string(status), fmtDatePtr(koDate), fmtDatePtr(kiDate), id)
	if err != nil {
		return fmt.Errorf("updating derived status: %w", err)
	}
	return nil
}

// SaveUnderlyings replaces the underlyings for a note.
func (s *SQLiteStore) SaveUnderlyings(ctx context.Context, noteID int64, underlyings []models.Underlying) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM note_underlyings WHERE note_id = ?`, noteID); err != nil {
		return fmt.Errorf("clearing underlyings: %w", err)
	}

	for i, u := range underlyings {
		seq := u.Seq
		if seq == 0 {
			seq = i + 1
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO note_underlyings (note_id, seq, ticker, spot_price, ko_price, ki_price, strike_price, last_close_price)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			noteID, seq, u.Ticker, u.SpotPrice, u.KOPrice, u.KIPrice, u.StrikePrice, u.LastClose)
		if err != nil {
			return fmt.Errorf("inserting underlying %s: %w", u.Ticker, err)
		}
	}

	return tx.Commit()
}

// GetUnderlyings fetches the underlyings for a note in display order.
func (s *SQLiteStore) GetUnderlyings(ctx context.Context, noteID int64) ([]models.Underlying, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT note_id, seq, ticker, spot_price, ko_price, ki_price, strike_price, last_close_price
		FROM note_underlyings WHERE note_id = ? ORDER BY seq`, noteID)
	if err != nil {
		return nil, fmt.Errorf("querying underlyings: %w", err)
	}
	defer rows.Close()

	var underlyings []models.Underlying
	for rows.Next() {
		var u models.Underlying
		var spot, ko, ki, strike, last sql.NullFloat64
		if err := rows.Scan(&u.NoteID, &u.Seq, &u.Ticker, &spot, &ko, &ki, &strike, &last); err != nil {
			return nil, fmt.Errorf("scanning underlying: %w", err)
		}
		u.SpotPrice = spot.Float64
		u.KOPrice = ko.Float64
		u.KIPrice = ki.Float64
		u.StrikePrice = strike.Float64
		u.LastClose = last.Float64
		underlyings = append(underlyings, u)
	}
	return underlyings, rows.Err()
}

// UpdateLastClose updates the display price for every underlying row
// referencing the ticker.
func (s *SQLiteStore) UpdateLastClose(ctx context.Context, ticker string, close float64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE note_underlyings SET last_close_price = ? WHERE ticker = ?`, close, ticker)
	if err != nil {
		return fmt.Errorf("updating last close for %s: %w", ticker, err)
	}
	return nil
}

// Tickers returns the distinct tickers across all underlyings.
func (s *SQLiteStore) Tickers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT ticker FROM note_underlyings ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("querying tickers: %w", err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scanning ticker: %w", err)
		}
		tickers = append(tickers, t)
	}
	return tickers, rows.Err()
}

// SaveSnapshots inserts snapshots, ignoring duplicates: past observations
// are immutable and never overwritten.
func (s *SQLiteStore) SaveSnapshots(ctx context.Context, snapshots []models.PriceSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO price_snapshots (ticker, date, close) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing snapshot insert: %w", err)
	}
	defer stmt.Close()

	for _, snap := range snapshots {
		if _, err := stmt.ExecContext(ctx, snap.Ticker, snap.Date.Format(dateLayout), snap.Close); err != nil {
			return fmt.Errorf("inserting snapshot %s %s: %w", snap.Ticker, snap.Date.Format(dateLayout), err)
		}
	}

	return tx.Commit()
}

// GetSnapshots loads closing prices for the tickers within [from, to].
func (s *SQLiteStore) GetSnapshots(ctx context.Context, tickers []string, from, to time.Time) (models.SnapshotSet, error) {
	set := models.NewSnapshotSet()
	if len(tickers) == 0 {
		return set, nil
	}

	placeholders := strings.Repeat("?,", len(tickers))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, 0, len(tickers)+2)
	for _, t := range tickers {
		args = append(args, t)
	}
	args = append(args, from.Format(dateLayout), to.Format(dateLayout))

	rows, err := s.db.QueryContext(ctx, `
		SELECT ticker, date, close FROM price_snapshots
		WHERE ticker IN (`+placeholders+`) AND date >= ? AND date <= ?
		ORDER BY ticker, date`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ticker, dateStr string
		var close float64
		if err := rows.Scan(&ticker, &dateStr, &close); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		date, err := time.Parse(dateLayout, dateStr)
		if err != nil {
			continue
		}
		set.Add(ticker, date, close)
	}
	return set, rows.Err()
}

// GetLastSync returns the last sync time for a data type.
func (s *SQLiteStore) GetLastSync(dataType string) time.Time {
	s.mu.RLock()
	if t, ok := s.syncTimes[dataType]; ok {
		s.mu.RUnlock()
		return t
	}
	s.mu.RUnlock()

	var tsStr string
	err := s.db.QueryRow(`SELECT last_sync FROM sync_metadata WHERE data_type = ?`, dataType).Scan(&tsStr)
	if err != nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, tsStr)
	if err != nil {
		return time.Time{}
	}

	s.mu.Lock()
	s.syncTimes[dataType] = t
	s.mu.Unlock()
	return t
}

// SetLastSync records the last sync time for a data type.
func (s *SQLiteStore) SetLastSync(dataType string, t time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO sync_metadata (data_type, last_sync) VALUES (?, ?)
		ON CONFLICT(data_type) DO UPDATE SET last_sync = excluded.last_sync`,
		dataType, t.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("recording sync time: %w", err)
	}

	s.mu.Lock()
	s.syncTimes[dataType] = t
	s.mu.Unlock()
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
