package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ms-checkin/internal/models"
)

var now = time.Date(2026, 6, 10, 14, 30, 0, 0, time.UTC)

func entryAt(t time.Time) models.CheckinHistory {
	return models.CheckinHistory{CheckedInAt: t, Method: models.MethodManual}
}

func TestSingleEntryTicketDeniedOnSecondScan(t *testing.T) {
	e := NewEvaluator(nil)
	ac := models.AccessControl{AllowMultipleEntries: false}

	first := e.Evaluate(ac, nil, "", now)
	assert.Equal(t, Allow, first.Code)
	assert.Equal(t, 1, first.EntryNumber)

	second := e.Evaluate(ac, []models.CheckinHistory{entryAt(now)}, "", now.Add(time.Minute))
	assert.Equal(t, DenyAlready, second.Code)
}

func TestDailyLimit(t *testing.T) {
	e := NewEvaluator(nil)
	ac := models.AccessControl{AllowMultipleEntries: true, MaxEntriesPerDay: 2}

	history := []models.CheckinHistory{}
	for i := 0; i < 2; i++ {
		d := e.Evaluate(ac, history, "", now)
		assert.Equal(t, Allow, d.Code)
		history = append(history, entryAt(now.Add(time.Duration(i)*time.Minute)))
	}

	third := e.Evaluate(ac, history, "", now)
	assert.Equal(t, DenyDailyLimit, third.Code)
}

func TestDailyLimitResetsAcrossUTCDays(t *testing.T) {
	e := NewEvaluator(nil)
	ac := models.AccessControl{AllowMultipleEntries: true, MaxEntriesPerDay: 1}

	yesterday := entryAt(now.AddDate(0, 0, -1))
	d := e.Evaluate(ac, []models.CheckinHistory{yesterday}, "", now)
	assert.Equal(t, Allow, d.Code)
	assert.Equal(t, 2, d.EntryNumber)
}

func TestValidDays(t *testing.T) {
	e := NewEvaluator(nil)
	ac := models.AccessControl{AllowMultipleEntries: true, ValidDays: []string{"2026-06-11"}}

	d := e.Evaluate(ac, nil, "", now)
	assert.Equal(t, DenyInvalidDay, d.Code)

	d = e.Evaluate(ac, nil, "", now.AddDate(0, 0, 1))
	assert.Equal(t, Allow, d.Code)
}

func TestZoneGating(t *testing.T) {
	e := NewEvaluator(nil)
	ac := models.AccessControl{AllowMultipleEntries: true, AccessZones: []string{"vip"}}

	denied := e.Evaluate(ac, nil, "geral", now)
	assert.Equal(t, DenyZone, denied.Code)
	assert.Contains(t, denied.Reason, "zone")

	allowed := e.Evaluate(ac, nil, "vip", now)
	assert.Equal(t, Allow, allowed.Code)

	// No zone filter on the request means no gating.
	unfiltered := e.Evaluate(ac, nil, "", now)
	assert.Equal(t, Allow, unfiltered.Code)
}

func TestAlreadyWinsOverZone(t *testing.T) {
	e := NewEvaluator(nil)
	ac := models.AccessControl{AllowMultipleEntries: false, AccessZones: []string{"vip"}}

	// Rule order is fixed: the operator should hear "already checked in"
	// rather than a zone complaint on a reused single-entry ticket.
	d := e.Evaluate(ac, []models.CheckinHistory{entryAt(now)}, "geral", now)
	assert.Equal(t, DenyAlready, d.Code)
}

func TestEntryNumbering(t *testing.T) {
	e := NewEvaluator(nil)
	ac := models.AccessControl{AllowMultipleEntries: true}

	history := []models.CheckinHistory{}
	for i := 1; i <= 5; i++ {
		d := e.Evaluate(ac, history, "", now)
		assert.Equal(t, Allow, d.Code)
		assert.Equal(t, i, d.EntryNumber)
		history = append(history, entryAt(now.Add(time.Duration(i)*time.Minute)))
	}
}

func TestConfigurableDayBoundary(t *testing.T) {
	// 01:00 UTC on June 11 is still June 10 in New York. A ticket valid
	// only on the 10th passes with a venue-local evaluator and fails with
	// the UTC default.
	ny, err := time.LoadLocation("America/New_York")
	assert.NoError(t, err)

	lateNight := time.Date(2026, 6, 11, 1, 0, 0, 0, time.UTC)
	ac := models.AccessControl{AllowMultipleEntries: true, ValidDays: []string{"2026-06-10"}}

	assert.Equal(t, DenyInvalidDay, NewEvaluator(nil).Evaluate(ac, nil, "", lateNight).Code)
	assert.Equal(t, Allow, NewEvaluator(ny).Evaluate(ac, nil, "", lateNight).Code)
}
