package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukerupert/classbook/internal/database"
	"github.com/dukerupert/classbook/internal/model"
	"github.com/dukerupert/classbook/internal/store"
)

type Mode string

const (
	ModeMerge   Mode = "MERGE"
	ModeReplace Mode = "REPLACE"
)

// ReplaceConfirmation must be sent verbatim with every REPLACE restore.
const ReplaceConfirmation = "DELETE SCHOOL DATA"

const DefaultRestoreTimeout = 5 * time.Minute

// ParseMode accepts exactly MERGE or REPLACE.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeMerge:
		return ModeMerge, nil
	case ModeReplace:
		return ModeReplace, nil
	default:
		return "", newError(KindBadRequest, fmt.Sprintf("mode must be %s or %s", ModeMerge, ModeReplace), nil)
	}
}

type RestoreRequest struct {
	BackupID            string
	Mode                Mode
	DestinationTenantID int64
	Confirmation        string
	ActorID             int64
}

type CreatedIdentity struct {
	Handle     string `json:"handle"`
	TempSecret string `json:"temp_secret"`
}

type SkippedIdentity struct {
	Handle string `json:"handle"`
	Reason string `json:"reason"`
}

// Warnings collects recoverable per-row problems. None of them abort a restore.
type Warnings struct {
	StudentErrors       []string `json:"student_errors"`
	SubjectErrors       []string `json:"subject_errors"`
	DroppedSubjectCodes []string `json:"dropped_subject_codes"`
	LinkErrors          int      `json:"link_errors"`
}

type Applied struct {
	Wiped               map[string]int64 `json:"wiped,omitempty"`
	Settings            int              `json:"settings"`
	Subscription        int              `json:"subscription"`
	Identities          Tally            `json:"identities"`
	Classes             Tally            `json:"classes"`
	Subjects            Tally            `json:"subjects"`
	Students            Tally            `json:"students"`
	StaffProfiles       Tally            `json:"staff_profiles"`
	TeachingAssignments Tally            `json:"teaching_assignments"`
	ClassTeacherLinks   Tally            `json:"class_teacher_links"`
}

type RestoreResult struct {
	BackupID            string            `json:"backup_id"`
	Mode                Mode              `json:"mode"`
	SourceTenantID      int64             `json:"source_tenant_id"`
	DestinationTenantID int64             `json:"destination_tenant_id"`
	CreatedIdentities   []CreatedIdentity `json:"created_identities"`
	SkippedIdentities   []SkippedIdentity `json:"skipped_identities"`
	SnapshotCounts      Counts            `json:"snapshot_counts"`
	Applied             Applied           `json:"applied"`
	Warnings            Warnings          `json:"warnings"`
}

// StatusFunc is called after every backup status transition a restore makes.
type StatusFunc func(backupID string, tenantID int64, status model.BackupStatus)

type EngineConfig struct {
	// Timeout bounds the restore transaction. Zero means DefaultRestoreTimeout.
	Timeout  time.Duration
	Hasher   Hasher
	OnStatus StatusFunc
}

// Engine reconciles a stored snapshot into a destination tenant.
type Engine struct {
	db         *sql.DB
	backups    *store.BackupStore
	tenants    *store.TenantStore
	reconciler *IdentityReconciler
	hasher     Hasher
	timeout    time.Duration
	onStatus   StatusFunc
	logger     *slog.Logger
}

func NewEngine(db *sql.DB, cfg EngineConfig, logger *slog.Logger) *Engine {
	e := &Engine{
		db:         db,
		backups:    store.NewBackupStore(db),
		tenants:    store.NewTenantStore(db),
		reconciler: NewIdentityReconciler(logger),
		hasher:     cfg.Hasher,
		timeout:    cfg.Timeout,
		onStatus:   cfg.OnStatus,
		logger:     logger,
	}
	if e.hasher == nil {
		e.hasher = BcryptHasher{}
	}
	if e.timeout <= 0 {
		e.timeout = DefaultRestoreTimeout
	}
	return e
}

func (e *Engine) notify(backupID string, tenantID int64, status model.BackupStatus) {
	if e.onStatus != nil {
		e.onStatus(backupID, tenantID, status)
	}
}

// Restore validates req, claims the backup and applies its payload to the
// destination tenant in one transaction. Nothing is written when a
// precondition fails. Once the backup is claimed it always ends READY or FAILED.
func (e *Engine) Restore(ctx context.Context, req RestoreRequest) (*RestoreResult, error) {
	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return nil, err
	}
	if mode == ModeReplace && req.Confirmation != ReplaceConfirmation {
		return nil, newError(KindBadRequest,
			fmt.Sprintf("REPLACE requires the confirmation %q", ReplaceConfirmation), nil)
	}

	backup, err := e.backups.Get(ctx, req.BackupID, true)
	if err != nil {
		return nil, newError(KindInternal, "load backup", err)
	}
	if backup == nil {
		return nil, newError(KindNotFound, "backup not found", nil)
	}
	if backup.Status == model.BackupStatusRestoring {
		return nil, newError(KindConflict, "a restore of this backup is already in progress", nil)
	}

	payload, err := DecodePayload(backup.Payload)
	if err != nil {
		return nil, err
	}

	dest, err := e.tenants.GetByID(ctx, req.DestinationTenantID)
	if err != nil {
		return nil, newError(KindInternal, "load destination tenant", err)
	}
	if dest == nil {
		return nil, newError(KindNotFound, "destination tenant not found", nil)
	}
	if !dest.Active {
		return nil, newError(KindConflict, "destination tenant is inactive", nil)
	}

	claimed, err := e.backups.ClaimForRestore(ctx, backup.ID)
	if err != nil {
		return nil, newError(KindInternal, "claim backup", err)
	}
	if !claimed {
		return nil, newError(KindConflict, "a restore of this backup is already in progress", nil)
	}
	e.notify(backup.ID, backup.TenantID, model.BackupStatusRestoring)

	log := e.logger.With(
		"backup_id", backup.ID,
		"mode", string(mode),
		"source_tenant_id", payload.TenantID,
		"destination_tenant_id", dest.ID,
	)
	log.Info("restore started")
	start := time.Now()

	result, runErr := e.run(ctx, backup.ID, payload, dest.ID, mode, log)

	final := model.BackupStatusReady
	if runErr != nil {
		final = model.BackupStatusFailed
	}
	if err := e.backups.FinishRestore(context.WithoutCancel(ctx), backup.ID, final); err != nil {
		log.Error("restore status reset failed", "status", string(final), "error", err)
	}
	e.notify(backup.ID, backup.TenantID, final)

	if runErr != nil {
		log.Error("restore failed", "duration", time.Since(start), "error", runErr)
		return nil, newError(KindInternal, "restore failed", runErr)
	}
	log.Info("restore finished",
		"duration", time.Since(start),
		"created_identities", len(result.CreatedIdentities),
		"skipped_identities", len(result.SkippedIdentities),
	)
	return result, nil
}

func (e *Engine) run(ctx context.Context, backupID string, payload *Payload, destID int64, mode Mode, log *slog.Logger) (*RestoreResult, error) {
	creds, err := prepareCredentials(ctx, e.hasher, payload.Data.Identities)
	if err != nil {
		return nil, fmt.Errorf("prepare credentials: %w", err)
	}

	result := &RestoreResult{
		BackupID:            backupID,
		Mode:                mode,
		SourceTenantID:      payload.TenantID,
		DestinationTenantID: destID,
		CreatedIdentities:   []CreatedIdentity{},
		SkippedIdentities:   []SkippedIdentity{},
		SnapshotCounts:      payload.Data.Counts(),
		Warnings: Warnings{
			StudentErrors:       []string{},
			SubjectErrors:       []string{},
			DroppedSubjectCodes: []string{},
		},
	}

	err = database.WithTx(ctx, e.db, e.timeout, func(tx *sql.Tx) error {
		r := &restoreRun{
			tx:            tx,
			mode:          mode,
			dest:          destID,
			data:          &payload.Data,
			creds:         creds,
			reconciler:    e.reconciler,
			logger:        log,
			result:        result,
			identities:    store.NewIdentityStore(tx),
			classes:       store.NewClassStore(tx),
			subjects:      store.NewSubjectStore(tx),
			students:      store.NewStudentStore(tx),
			staff:         store.NewStaffStore(tx),
			subscriptions: store.NewSubscriptionStore(tx),
			settings:      store.NewSettingsStore(tx),
			identityIDs:   IDMap{},
			classIDs:      IDMap{},
			subjectIDs:    IDMap{},
			staffIDs:      IDMap{},
		}
		return r.apply(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// restoreRun is the state of one restore transaction.
type restoreRun struct {
	tx         store.DBTX
	mode       Mode
	dest       int64
	data       *Data
	creds      map[string]credential
	reconciler *IdentityReconciler
	logger     *slog.Logger
	result     *RestoreResult

	identities    *store.IdentityStore
	classes       *store.ClassStore
	subjects      *store.SubjectStore
	students      *store.StudentStore
	staff         *store.StaffStore
	subscriptions *store.SubscriptionStore
	settings      *store.SettingsStore

	identityIDs IDMap
	classIDs    IDMap
	subjectIDs  IDMap
	staffIDs    IDMap
}

func (r *restoreRun) apply(ctx context.Context) error {
	if r.mode == ModeReplace {
		wiped, err := wipeTenant(ctx, r.tx, r.dest)
		if err != nil {
			return err
		}
		r.result.Applied.Wiped = wiped
	}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"settings", r.restoreSettings},
		{"subscription", r.restoreSubscription},
		{"identities", r.restoreIdentities},
		{"classes", r.restoreClasses},
		{"subjects", r.restoreSubjects},
		{"students", r.restoreStudents},
		{"staff links", r.restoreStaffLinks},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return fmt.Errorf("restore %s: %w", step.name, err)
		}
	}
	return nil
}

func (r *restoreRun) restoreSettings(ctx context.Context) error {
	if r.data.Settings == nil {
		return nil
	}
	applied, err := r.settings.Upsert(ctx, r.dest, r.data.Settings)
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		r.result.Applied.Settings = 1
	}
	return nil
}

// restoreSubscription appends a new subscription row; existing rows are never touched.
func (r *restoreRun) restoreSubscription(ctx context.Context) error {
	sub := r.data.Subscription
	if sub == nil {
		return nil
	}
	if _, err := r.subscriptions.Create(ctx, r.dest, sub.Plan, sub.Status, sub.StartsAt, sub.EndsAt); err != nil {
		return err
	}
	r.result.Applied.Subscription = 1
	return nil
}

func (r *restoreRun) skipIdentity(handle, reason string) {
	r.result.SkippedIdentities = append(r.result.SkippedIdentities, SkippedIdentity{Handle: handle, Reason: reason})
	r.result.Applied.Identities.Skipped++
}

func (r *restoreRun) restoreIdentities(ctx context.Context) error {
	seen := make(map[string]bool, len(r.data.Identities))
	for _, ident := range r.data.Identities {
		handle := strings.TrimSpace(ident.Handle)
		key := handleKey(handle)
		switch {
		case handle == "":
			r.skipIdentity(ident.Handle, "empty handle")
			continue
		case seen[key]:
			r.skipIdentity(handle, "duplicate handle in snapshot")
			continue
		case ident.Role == model.RolePlatformOperator:
			r.skipIdentity(handle, "platform operator identities cannot be restored into a tenant")
			continue
		}
		seen[key] = true

		decision, err := r.reconciler.Classify(ctx, r.identities, handle, r.dest)
		if err != nil {
			return err
		}

		switch decision.Placement {
		case OutOfScope:
			r.skipIdentity(handle, reasonHandleClaimed)

		case InScope:
			if err := r.identities.Reconcile(ctx, decision.Existing.ID, ident.Role, ident.Active, true); err != nil {
				return err
			}
			r.identityIDs.Set(ident.ID, decision.Existing.ID)
			r.result.Applied.Identities.Updated++

		case Absent:
			cred, ok := r.creds[key]
			if !ok {
				return fmt.Errorf("no temporary credential prepared for %s", handle)
			}
			dest := r.dest
			in := store.NewIdentity{
				TenantID:           &dest,
				Handle:             handle,
				Name:               ident.Name,
				Role:               ident.Role,
				Active:             ident.Active,
				PasswordHash:       cred.hash,
				MustChangePassword: true,
			}
			if r.mode == ModeReplace && ident.ID != 0 {
				taken, err := r.identities.Exists(ctx, ident.ID)
				if err != nil {
					return err
				}
				if !taken {
					in.ID = ident.ID
				}
			}
			created, err := r.identities.Create(ctx, in)
			if err != nil {
				return err
			}
			r.identityIDs.Set(ident.ID, created.ID)
			r.result.CreatedIdentities = append(r.result.CreatedIdentities, CreatedIdentity{
				Handle:     created.Handle,
				TempSecret: cred.plain,
			})
			r.result.Applied.Identities.Created++
		}
	}
	return nil
}

func (r *restoreRun) restoreClasses(ctx context.Context) error {
	ids, tally, err := remap(r.data.Classes,
		func(c model.Class) int64 { return c.ID },
		func(c model.Class) (int64, bool, error) {
			stream := model.NormalizeStream(c.Stream)
			existing, err := r.classes.GetByNaturalKey(ctx, r.dest, c.Name, stream, c.AcademicYear)
			if err != nil {
				return 0, false, err
			}
			if existing != nil {
				return existing.ID, false, r.classes.Touch(ctx, existing.ID)
			}
			created, err := r.classes.Create(ctx, r.dest, c.Name, stream, c.AcademicYear)
			if err != nil {
				return 0, false, err
			}
			return created.ID, true, nil
		},
		nil,
	)
	if err != nil {
		return err
	}
	r.classIDs = ids
	r.result.Applied.Classes = tally
	return nil
}

func normalizeCode(code *string) *string {
	if code == nil {
		return nil
	}
	c := strings.TrimSpace(*code)
	if c == "" {
		return nil
	}
	return &c
}

var errEmptySubjectName = errors.New("subject name is empty")

func (r *restoreRun) restoreSubjects(ctx context.Context) error {
	ids, tally, err := remap(r.data.Subjects,
		func(s model.Subject) int64 { return s.ID },
		func(s model.Subject) (int64, bool, error) {
			name := strings.TrimSpace(s.Name)
			if name == "" {
				return 0, false, errEmptySubjectName
			}
			existing, err := r.subjects.GetByName(ctx, r.dest, name)
			if err != nil {
				return 0, false, err
			}

			code := normalizeCode(s.Code)
			if code != nil {
				owner, err := r.subjects.CodeOwner(ctx, r.dest, *code)
				if err != nil {
					return 0, false, err
				}
				if owner != 0 && (existing == nil || owner != existing.ID) {
					r.result.Warnings.DroppedSubjectCodes = append(r.result.Warnings.DroppedSubjectCodes,
						fmt.Sprintf("%s (%s)", name, *code))
					code = nil
				}
			}

			if existing != nil {
				if code != nil {
					if err := r.subjects.SetCode(ctx, existing.ID, code); err != nil {
						return 0, false, err
					}
				}
				return existing.ID, false, nil
			}
			created, err := r.subjects.Create(ctx, r.dest, name, code)
			if err != nil {
				return 0, false, err
			}
			return created.ID, true, nil
		},
		func(s model.Subject, err error) error {
			r.result.Warnings.SubjectErrors = append(r.result.Warnings.SubjectErrors,
				fmt.Sprintf("subject %q: %v", s.Name, err))
			return nil
		},
	)
	if err != nil {
		return err
	}
	r.subjectIDs = ids
	r.result.Applied.Subjects = tally
	return nil
}

// restoreStudents upserts by admission number. Class references go through
// the class map; identity links are always cleared.
func (r *restoreRun) restoreStudents(ctx context.Context) error {
	tally := &r.result.Applied.Students
	for _, s := range r.data.Students {
		admission := strings.TrimSpace(s.AdmissionNumber)
		if admission == "" {
			r.studentError(tally, fmt.Sprintf("student %q: admission number is empty", s.FirstName))
			continue
		}
		fields := store.StudentFields{
			AdmissionNumber: admission,
			FirstName:       s.FirstName,
			LastName:        s.LastName,
			Gender:          s.Gender,
			DateOfBirth:     s.DateOfBirth,
			ClassID:         r.classIDs.Resolve(s.ClassID),
			IdentityID:      nil,
		}

		existing, err := r.students.GetByAdmissionNumber(ctx, r.dest, admission)
		if err != nil {
			r.studentError(tally, fmt.Sprintf("student %s: %v", admission, err))
			continue
		}
		if existing != nil {
			if err := r.students.Update(ctx, existing.ID, fields); err != nil {
				r.studentError(tally, fmt.Sprintf("student %s: %v", admission, err))
				continue
			}
			tally.Updated++
			continue
		}
		if _, err := r.students.Create(ctx, r.dest, fields); err != nil {
			r.studentError(tally, fmt.Sprintf("student %s: %v", admission, err))
			continue
		}
		tally.Created++
	}
	return nil
}

func (r *restoreRun) studentError(tally *Tally, msg string) {
	r.result.Warnings.StudentErrors = append(r.result.Warnings.StudentErrors, msg)
	tally.Skipped++
}

// restoreStaffLinks recreates staff profiles, teaching assignments and
// class-teacher links in REPLACE mode. MERGE counts them all as skipped.
func (r *restoreRun) restoreStaffLinks(ctx context.Context) error {
	applied := &r.result.Applied
	if r.mode != ModeReplace {
		applied.StaffProfiles.Skipped = len(r.data.StaffProfiles)
		applied.TeachingAssignments.Skipped = len(r.data.TeachingAssignments)
		applied.ClassTeacherLinks.Skipped = len(r.data.ClassTeacherLinks)
		return nil
	}

	for _, p := range r.data.StaffProfiles {
		created, err := r.staff.CreateProfile(ctx, r.dest, r.identityIDs.Resolve(p.IdentityID), p.FullName, p.Title, p.Phone)
		if err != nil {
			r.linkFailed(&applied.StaffProfiles, "staff_profile", p.ID, err)
			continue
		}
		r.staffIDs.Set(p.ID, created.ID)
		applied.StaffProfiles.Created++
	}

	for _, a := range r.data.TeachingAssignments {
		staffID, okStaff := r.staffIDs.Lookup(a.StaffID)
		classID, okClass := r.classIDs.Lookup(a.ClassID)
		subjectID, okSubject := r.subjectIDs.Lookup(a.SubjectID)
		if !okStaff || !okClass || !okSubject {
			applied.TeachingAssignments.Skipped++
			continue
		}
		if _, err := r.staff.CreateAssignment(ctx, r.dest, staffID, classID, subjectID); err != nil {
			r.linkFailed(&applied.TeachingAssignments, "teaching_assignment", a.ID, err)
			continue
		}
		applied.TeachingAssignments.Created++
	}

	for _, l := range r.data.ClassTeacherLinks {
		classID, okClass := r.classIDs.Lookup(l.ClassID)
		staffID, okStaff := r.staffIDs.Lookup(l.StaffID)
		if !okClass || !okStaff {
			applied.ClassTeacherLinks.Skipped++
			continue
		}
		if _, err := r.staff.CreateClassTeacherLink(ctx, r.dest, classID, staffID); err != nil {
			r.linkFailed(&applied.ClassTeacherLinks, "class_teacher_link", l.ID, err)
			continue
		}
		applied.ClassTeacherLinks.Created++
	}
	return nil
}

func (r *restoreRun) linkFailed(tally *Tally, entity string, id int64, err error) {
	tally.Skipped++
	r.result.Warnings.LinkErrors++
	r.logger.Debug("restore link row skipped", "entity", entity, "snapshot_id", id, "error", err)
}
