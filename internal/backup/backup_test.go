package backup_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"civicdesk/internal/audit"
	auditmemory "civicdesk/internal/audit/store/memory"
	"civicdesk/internal/backup"
	"civicdesk/internal/declaration"
	declmemory "civicdesk/internal/declaration/store/memory"
	"civicdesk/internal/pending"
	pendingmemory "civicdesk/internal/pending/store/memory"
	"civicdesk/internal/protection"
	protectionmemory "civicdesk/internal/protection/store/memory"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/requestcontext"
)

type BackupSuite struct {
	suite.Suite
	ctx          context.Context
	now          time.Time
	declarations *declaration.Service
	pending      *pending.Service
	logStore     *auditmemory.Store
	service      *backup.Service
}

func TestBackupSuite(t *testing.T) {
	suite.Run(t, new(BackupSuite))
}

func (s *BackupSuite) SetupTest() {
	s.now = time.Date(2026, 7, 14, 8, 30, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }
	s.logStore = auditmemory.New()
	s.declarations = declaration.NewService(declmemory.New(), declaration.WithClock(clock))
	s.pending = pending.NewService(pendingmemory.New(), s.declarations, pending.WithClock(clock))
	policies := protection.NewService(protectionmemory.New())
	s.service = backup.New(s.declarations, s.pending, policies,
		backup.WithAuditor(audit.NewRecorder(s.logStore)),
		backup.WithClock(clock),
	)
	admin := requestcontext.ActorInfo{ID: id.NewUserID(), Name: "root", Role: id.RoleAdmin}
	s.ctx = requestcontext.WithActor(context.Background(), admin)
}

func (s *BackupSuite) create(name string) *declaration.Declaration {
	d, err := s.declarations.Create(context.Background(), declaration.Input{
		DeclarantName: name,
		Phone:         "+22890112233",
		Type:          "loss",
		Category:      "keys",
		Description:   "A ring of three keys with a red tag.",
		IncidentDate:  "2026-07-10",
		Location:      "Atakpamé",
	}, declaration.SourceDirect)
	s.Require().NoError(err)
	return d
}

func (s *BackupSuite) entries(action audit.Action) []audit.Entry {
	list, err := s.logStore.List(context.Background(), audit.Filter{Action: action, TargetType: audit.TargetBackup})
	s.Require().NoError(err)
	return list
}

func (s *BackupSuite) TestExport() {
	s.create("Ama Kudjo")
	s.create("Komi Adjo")
	_, err := s.pending.Quarantine(context.Background(), pending.NewItem{Payload: json.RawMessage(`{"type":"loss"}`)})
	s.Require().NoError(err)

	doc, err := s.service.Export(s.ctx)
	s.Require().NoError(err)

	s.Equal(backup.FormatVersion, doc.Version)
	s.Equal(s.now, doc.ExportedAt)
	s.Len(doc.Declarations, 2)
	s.Len(doc.PendingItems, 1)
	s.Require().NotNil(doc.Policy)

	entries := s.entries(audit.ActionBackup)
	s.Require().Len(entries, 1)
	s.True(entries[0].IsSensitive)
	s.Equal("root", entries[0].ActorName)
	s.JSONEq(`{"declarations_count":2,"pending_declarations_count":1}`, entries[0].Details)
}

func (s *BackupSuite) TestRestore() {
	s.Run("imports into an empty store and skips on a second run", func() {
		s.SetupTest()
		s.create("Ama Kudjo")
		s.create("Komi Adjo")
		doc, err := s.service.Export(s.ctx)
		s.Require().NoError(err)
		raw, err := json.Marshal(doc)
		s.Require().NoError(err)

		s.SetupTest()
		var decoded backup.Document
		s.Require().NoError(json.Unmarshal(raw, &decoded))

		report, err := s.service.Restore(s.ctx, &decoded)
		s.Require().NoError(err)
		s.Equal(2, report.Imported)
		s.Zero(report.Skipped)
		s.Empty(report.Failed)

		again, err := s.service.Restore(s.ctx, &decoded)
		s.Require().NoError(err)
		s.Zero(again.Imported)
		s.Equal(2, again.Skipped)

		total, err := s.declarations.Count(context.Background())
		s.Require().NoError(err)
		s.Equal(2, total)
		s.Len(s.entries(audit.ActionRestore), 2)
	})

	s.Run("never overwrites an existing record", func() {
		s.SetupTest()
		original := s.create("Ama Kudjo")
		altered := original.Clone()
		altered.DeclarantName = "Someone Else"

		report, err := s.service.Restore(s.ctx, &backup.Document{Declarations: []*declaration.Declaration{altered}})
		s.Require().NoError(err)
		s.Equal(1, report.Skipped)

		stored, err := s.declarations.Get(context.Background(), original.ID)
		s.Require().NoError(err)
		s.Equal("Ama Kudjo", stored.DeclarantName)
	})

	s.Run("reports records that fail validation", func() {
		s.SetupTest()
		bad := &declaration.Declaration{ID: id.NewDeclarationID(), TrackingCode: "ABCD-EFGH-JKMN", Status: "lost"}
		report, err := s.service.Restore(s.ctx, &backup.Document{Declarations: []*declaration.Declaration{bad}})
		s.Require().NoError(err)
		s.Require().Len(report.Failed, 1)
		s.Equal("ABCD-EFGH-JKMN", report.Failed[0].TrackingCode)

		entries := s.entries(audit.ActionRestore)
		s.Require().Len(entries, 1)
		s.JSONEq(`{"imported":0,"skipped":0,"failed":1}`, entries[0].Details)
	})

	s.Run("requires a declarations list", func() {
		s.SetupTest()
		_, err := s.service.Restore(s.ctx, &backup.Document{})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Empty(s.entries(audit.ActionRestore))
	})

	s.Run("rejects newer formats", func() {
		s.SetupTest()
		_, err := s.service.Restore(s.ctx, &backup.Document{Version: backup.FormatVersion + 1, Declarations: []*declaration.Declaration{}})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}
