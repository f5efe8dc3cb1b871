package declaration_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"civicdesk/internal/audit"
	auditmemory "civicdesk/internal/audit/store/memory"
	"civicdesk/internal/declaration"
	declmemory "civicdesk/internal/declaration/store/memory"
	"civicdesk/internal/platform/metrics"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/requestcontext"
)

func validInput() declaration.Input {
	return declaration.Input{
		DeclarantName: "Afi Mensah",
		Phone:         "+22890123456",
		Type:          "loss",
		Category:      "identity card",
		Description:   "Lost my identity card near the central market.",
		IncidentDate:  "2026-04-02",
		Location:      "Lomé, Grand Marché",
	}
}

type ServiceSuite struct {
	suite.Suite
	ctx      context.Context
	store    *declmemory.Store
	logStore *auditmemory.Store
	metrics  *metrics.Metrics
	service  *declaration.Service
	agent    requestcontext.ActorInfo
	now      time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2026, 4, 3, 9, 0, 0, 0, time.UTC)
	s.store = declmemory.New()
	s.logStore = auditmemory.New()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = declaration.NewService(s.store,
		declaration.WithAuditor(audit.NewRecorder(s.logStore)),
		declaration.WithMetrics(s.metrics),
		declaration.WithClock(func() time.Time { return s.now }),
	)
	s.ctx = requestcontext.WithClientMetadata(context.Background(), "196.168.1.10", "Mozilla/5.0")
	s.ctx = requestcontext.WithDevice(s.ctx, requestcontext.DeviceInfo{Browser: "Firefox 120 on Linux", Type: "desktop"})
	s.agent = requestcontext.ActorInfo{ID: id.NewUserID(), Name: "agent1", Role: id.RoleAgent}
}

func (s *ServiceSuite) logEntries(filter audit.Filter) []audit.Entry {
	entries, err := s.logStore.List(context.Background(), filter)
	s.Require().NoError(err)
	return entries
}

func (s *ServiceSuite) TestCreate() {
	s.Run("stores a pending declaration with request metadata", func() {
		d, err := s.service.Create(s.ctx, validInput(), declaration.SourceDirect)
		s.Require().NoError(err)
		s.False(d.ID.IsNil())
		s.True(declaration.WellFormedTrackingCode(d.TrackingCode))
		s.Equal(declaration.StatusPending, d.Status)
		s.Require().Len(d.StatusHistory, 1)
		s.Equal(declaration.StatusPending, d.StatusHistory[0].Status)
		s.Equal("196.168.1.10", d.IPAddress)
		s.Equal("Firefox 120 on Linux", d.BrowserInfo)
		s.Equal(s.now, d.CreatedAt)
		s.Equal(int64(1), s.metrics.Snapshot().DeclarationsCreated)
	})

	s.Run("one sensitive audit entry per create", func() {
		d, err := s.service.Create(s.ctx, validInput(), declaration.SourceSync)
		s.Require().NoError(err)
		entries := s.logEntries(audit.Filter{TargetType: audit.TargetDeclaration, TargetID: d.ID.String()})
		s.Require().Len(entries, 1)
		s.Equal(audit.ActionCreate, entries[0].Action)
		s.True(entries[0].IsSensitive)
		s.Equal(audit.AnonymousActor, entries[0].ActorName)
		s.Equal(int64(1), s.metrics.Snapshot().DeclarationsSynced)
	})

	s.Run("validation failure stores nothing", func() {
		in := validInput()
		in.Phone = "123"
		_, err := s.service.Create(s.ctx, in, declaration.SourceDirect)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		counts, _ := s.store.CountByStatus(context.Background())
		s.Equal(2, counts[declaration.StatusPending])
	})
}

func (s *ServiceSuite) TestClientSuppliedIdentifiers() {
	s.Run("unused well-formed code is honoured", func() {
		in := validInput()
		in.TrackingCode = "offline-0001"
		d, err := s.service.Create(s.ctx, in, declaration.SourceSync)
		s.Require().NoError(err)
		s.Equal("OFFLINE-0001", d.TrackingCode)
	})

	s.Run("taken code is regenerated on the direct path, never overwritten", func() {
		in := validInput()
		in.TrackingCode = "OFFLINE-0001"
		d, err := s.service.Create(s.ctx, in, declaration.SourceDirect)
		s.Require().NoError(err)
		s.NotEqual("OFFLINE-0001", d.TrackingCode)

		original, err := s.service.GetByTrackingCode(context.Background(), "OFFLINE-0001")
		s.Require().NoError(err)
		s.NotEqual(d.ID, original.ID)
	})

	s.Run("malformed code is replaced on the direct path", func() {
		in := validInput()
		in.TrackingCode = "x"
		d, err := s.service.Create(s.ctx, in, declaration.SourceDirect)
		s.Require().NoError(err)
		s.Len(d.TrackingCode, 14)
	})

	for _, source := range []declaration.Source{declaration.SourceSync, declaration.SourcePending} {
		s.Run(string(source)+" path keys on the client code", func() {
			before, err := s.service.Count(context.Background())
			s.Require().NoError(err)

			in := validInput()
			in.TrackingCode = "OFFLINE-0001"
			_, err = s.service.Create(s.ctx, in, source)
			s.ErrorIs(err, declaration.ErrCodeTaken)

			in.TrackingCode = "q1"
			_, err = s.service.Create(s.ctx, in, source)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation))
			s.Contains(dErrors.FieldsOf(err), "tracking_code")

			after, err := s.service.Count(context.Background())
			s.Require().NoError(err)
			s.Equal(before, after)
		})
	}

	s.Run("unused client id is honoured, taken id regenerated", func() {
		clientID := id.NewDeclarationID()
		in := validInput()
		in.ID = clientID.String()
		d, err := s.service.Create(s.ctx, in, declaration.SourceSync)
		s.Require().NoError(err)
		s.Equal(clientID, d.ID)

		d2, err := s.service.Create(s.ctx, in, declaration.SourceSync)
		s.Require().NoError(err)
		s.NotEqual(clientID, d2.ID)
	})
}

func (s *ServiceSuite) TestCodeExhaustion() {
	svc := declaration.NewService(s.store, declaration.WithCodeGenerator(func() string { return "SAME-SAME-SAME" }))
	_, err := svc.Create(s.ctx, validInput(), declaration.SourceDirect)
	s.Require().NoError(err)

	_, err = svc.Create(s.ctx, validInput(), declaration.SourceDirect)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestUpdate() {
	d, err := s.service.Create(s.ctx, validInput(), declaration.SourceDirect)
	s.Require().NoError(err)
	staffCtx := requestcontext.WithActor(s.ctx, s.agent)

	s.Run("status change appends history and stamps validator", func() {
		s.now = s.now.Add(time.Hour)
		validated := declaration.StatusValidated
		updated, err := s.service.Update(staffCtx, d.ID, declaration.Update{Status: &validated, StatusComment: "checked"})
		s.Require().NoError(err)
		s.Equal(declaration.StatusValidated, updated.Status)
		s.Require().Len(updated.StatusHistory, 2)
		last := updated.StatusHistory[len(updated.StatusHistory)-1]
		s.Equal(updated.Status, last.Status)
		s.Equal("agent1", last.Actor)
		s.Equal("checked", last.Comment)
		s.Require().NotNil(updated.ValidatedBy)
		s.Equal(s.agent.ID, *updated.ValidatedBy)
	})

	s.Run("diff holds only changed keys", func() {
		notes := "called the declarant"
		high := "high"
		_, err := s.service.Update(staffCtx, d.ID, declaration.Update{AdminNotes: &notes, Priority: &high})
		s.Require().NoError(err)

		entries := s.logEntries(audit.Filter{Action: audit.ActionUpdate, TargetID: d.ID.String()})
		s.Require().NotEmpty(entries)
		var diff map[string]audit.Change
		s.Require().NoError(json.Unmarshal([]byte(entries[0].Details), &diff))
		s.Len(diff, 2)
		s.Equal("high", diff["priority"].New)
		s.Nil(diff["priority"].Old)
		s.Equal("called the declarant", diff["admin_notes"].New)
		s.Equal("agent1", entries[0].ActorName)
	})

	s.Run("no-op update still writes one entry with an empty diff", func() {
		before := len(s.logEntries(audit.Filter{Action: audit.ActionUpdate}))
		validated := declaration.StatusValidated
		_, err := s.service.Update(staffCtx, d.ID, declaration.Update{Status: &validated})
		s.Require().NoError(err)

		entries := s.logEntries(audit.Filter{Action: audit.ActionUpdate})
		s.Require().Len(entries, before+1)
		var empty int
		for _, e := range entries {
			if e.Details == "{}" {
				empty++
			}
		}
		s.Equal(1, empty)
	})

	s.Run("invalid values rejected", func() {
		bogus := declaration.Status("archived")
		_, err := s.service.Update(staffCtx, d.ID, declaration.Update{Status: &bogus})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown id is not found", func() {
		notes := "x"
		_, err := s.service.Update(staffCtx, id.NewDeclarationID(), declaration.Update{AdminNotes: &notes})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestDelete() {
	d, err := s.service.Create(s.ctx, validInput(), declaration.SourceDirect)
	s.Require().NoError(err)
	staffCtx := requestcontext.WithActor(s.ctx, s.agent)

	s.Require().NoError(s.service.Delete(staffCtx, d.ID))

	_, err = s.service.Get(context.Background(), d.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	entries := s.logEntries(audit.Filter{Action: audit.ActionDelete, TargetID: d.ID.String()})
	s.Require().Len(entries, 1)
	var details map[string]string
	s.Require().NoError(json.Unmarshal([]byte(entries[0].Details), &details))
	s.Equal(d.TrackingCode, details["tracking_code"])
	s.Equal("Afi Mensah", details["declarant_name"])

	err = s.service.Delete(staffCtx, d.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestGetByIDOrCode() {
	d, err := s.service.Create(s.ctx, validInput(), declaration.SourceDirect)
	s.Require().NoError(err)

	byID, err := s.service.GetByIDOrCode(context.Background(), d.ID.String())
	s.Require().NoError(err)
	s.Equal(d.TrackingCode, byID.TrackingCode)

	byCode, err := s.service.GetByIDOrCode(context.Background(), d.TrackingCode)
	s.Require().NoError(err)
	s.Equal(d.ID, byCode.ID)

	_, err = s.service.GetByIDOrCode(context.Background(), "NOPE-NOPE-NOPE")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestImportNeverOverwrites() {
	d, err := s.service.Create(s.ctx, validInput(), declaration.SourceDirect)
	s.Require().NoError(err)

	copyOf := d.Clone()
	copyOf.DeclarantName = "Someone Else"
	err = s.service.Import(context.Background(), copyOf)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	kept, err := s.service.Get(context.Background(), d.ID)
	s.Require().NoError(err)
	s.Equal("Afi Mensah", kept.DeclarantName)

	fresh := d.Clone()
	fresh.ID = id.NewDeclarationID()
	fresh.TrackingCode = "IMPORTED-0001"
	s.Require().NoError(s.service.Import(context.Background(), fresh))
}

type brokenStore struct {
	*declmemory.Store
}

func (brokenStore) Create(context.Context, *declaration.Declaration) error {
	return errors.New("connection reset")
}

func (s *ServiceSuite) TestStorageFailureIsInternal() {
	svc := declaration.NewService(brokenStore{declmemory.New()})
	_, err := svc.Create(s.ctx, validInput(), declaration.SourceDirect)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}
