package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"plagiarism_backend/internal/model"
	"plagiarism_backend/internal/util"

	"gorm.io/gorm"
)

// caseFixture 内存实现 CaseService 的全部协作方接口
type caseFixture struct {
	mu sync.Mutex

	nextCaseID  uint
	cases       map[uint]*model.PlagiarismCase
	comparisons map[uint]*model.PlagiarismComparison
	exercises   map[uint]uint // comparisonID -> exerciseID
	submissions map[uint]*model.PlagiarismSubmission
	users       map[string]*model.User
}

func newCaseFixture() *caseFixture {
	return &caseFixture{
		cases:       map[uint]*model.PlagiarismCase{},
		comparisons: map[uint]*model.PlagiarismComparison{},
		exercises:   map[uint]uint{},
		submissions: map[uint]*model.PlagiarismSubmission{},
		users:       map[string]*model.User{},
	}
}

func (f *caseFixture) addUser(login string) {
	u := &model.User{Login: login, Language: "en"}
	u.ID = uint(len(f.users) + 1)
	f.users[login] = u
}

func (f *caseFixture) addComparison(id uint, exerciseID uint, loginA, loginB string) {
	subA := &model.PlagiarismSubmission{StudentLogin: loginA}
	subA.ID = id * 10
	subB := &model.PlagiarismSubmission{StudentLogin: loginB}
	subB.ID = id*10 + 1
	f.submissions[subA.ID] = subA
	f.submissions[subB.ID] = subB

	c := &model.PlagiarismComparison{Status: model.StatusNone}
	c.ID = id
	c.SubmissionAID = subA.ID
	c.SubmissionBID = subB.ID
	f.comparisons[id] = c
	f.exercises[id] = exerciseID
}

// --- caseStore ---

func (f *caseFixture) Create(c *model.PlagiarismCase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextCaseID++
	c.ID = f.nextCaseID
	f.cases[c.ID] = c
	return nil
}

func (f *caseFixture) Save(c *model.PlagiarismCase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cases[c.ID] = c
	return nil
}

func (f *caseFixture) FindByID(id uint) (*model.PlagiarismCase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cases[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return c, nil
}

func (f *caseFixture) FindByStudentAndExercise(studentLogin string, exerciseID uint) (*model.PlagiarismCase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.cases {
		if c.StudentLogin == studentLogin && c.ExerciseID == exerciseID {
			return c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *caseFixture) Delete(id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.cases, id)
	for _, s := range f.submissions {
		if s.CaseID != nil && *s.CaseID == id {
			s.CaseID = nil
		}
	}
	return nil
}

func (f *caseFixture) CountSubmissions(caseID uint) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, s := range f.submissions {
		if s.CaseID != nil && *s.CaseID == caseID {
			n++
		}
	}
	return n, nil
}

func (f *caseFixture) FindEmptyContinuousControlCases(exerciseID uint) ([]*model.PlagiarismCase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var empty []*model.PlagiarismCase
	for _, c := range f.cases {
		if c.ExerciseID != exerciseID || !c.CreatedByContinuousControl {
			continue
		}
		referenced := false
		for _, s := range f.submissions {
			if s.CaseID != nil && *s.CaseID == c.ID {
				referenced = true
				break
			}
		}
		if !referenced {
			empty = append(empty, c)
		}
	}
	return empty, nil
}

// --- postAttacher ---

func (f *caseFixture) AttachPost(caseID uint, post *model.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cases[caseID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if c.PostID != nil {
		return nil // 通知状态单向，不重复挂帖
	}
	postID := caseID + 1000
	post.ID = postID
	c.PostID = &postID
	c.Post = post
	return nil
}

// --- comparisonStore ---

func (f *caseFixture) FindByIDWithSubmissions(id uint) (*model.PlagiarismComparison, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.comparisons[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := *c
	out.SubmissionA = *f.submissions[c.SubmissionAID]
	out.SubmissionB = *f.submissions[c.SubmissionBID]
	return &out, nil
}

func (f *caseFixture) UpdateStatus(id uint, status model.PlagiarismStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.comparisons[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	c.Status = status
	return nil
}

func (f *caseFixture) UpdateSubmissionCaseID(submissionID uint, caseID *uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.submissions[submissionID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	s.CaseID = caseID
	return nil
}

func (f *caseFixture) ExerciseID(comparisonID uint) (uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.exercises[comparisonID]
	if !ok {
		return 0, gorm.ErrRecordNotFound
	}
	return id, nil
}

// --- userFinder ---

func (f *caseFixture) FindByLogin(login string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[login]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return u, nil
}

type countingMailer struct {
	notified []string
	verdicts []string
}

func (m *countingMailer) Notify(_ *model.PlagiarismCase, student *model.User) error {
	m.notified = append(m.notified, student.Login)
	return nil
}

func (m *countingMailer) NotifyVerdict(_ *model.PlagiarismCase, student *model.User) error {
	m.verdicts = append(m.verdicts, student.Login)
	return nil
}

func newCaseService(f *caseFixture) (*CaseService, *countingMailer) {
	mailer := &countingMailer{}
	notification := NewNotificationService(f, mailer, "https://example.edu/policy")
	return NewCaseService(f, f, f, notification), mailer
}

func TestConfirmCreatesCasePerStudent(t *testing.T) {
	f := newCaseFixture()
	f.addUser("alice")
	f.addUser("bob")
	f.addComparison(1, 100, "alice", "bob")

	svc, mailer := newCaseService(f)
	if err := svc.ConfirmComparison(1, false, true); err != nil {
		t.Fatalf("ConfirmComparison: %v", err)
	}

	if got := f.comparisons[1].Status; got != model.StatusConfirmed {
		t.Errorf("status = %s, want CONFIRMED", got)
	}
	if len(f.cases) != 2 {
		t.Fatalf("cases = %d, want 2", len(f.cases))
	}
	for _, login := range []string{"alice", "bob"} {
		c, err := f.FindByStudentAndExercise(login, 100)
		if err != nil {
			t.Fatalf("no case for %s", login)
		}
		if n, _ := f.CountSubmissions(c.ID); n != 1 {
			t.Errorf("case of %s references %d submissions, want 1", login, n)
		}
		if !c.Notified() {
			t.Errorf("case of %s has no notification post", login)
		}
	}
	if len(mailer.notified) != 2 {
		t.Errorf("mail notifications = %d, want 2", len(mailer.notified))
	}
}

func TestConfirmIsIdempotent(t *testing.T) {
	f := newCaseFixture()
	f.addUser("alice")
	f.addUser("bob")
	f.addComparison(1, 100, "alice", "bob")

	svc, _ := newCaseService(f)
	if err := svc.ConfirmComparison(1, false, false); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if err := svc.ConfirmComparison(1, false, false); err != nil {
		t.Fatalf("second confirm: %v", err)
	}

	if len(f.cases) != 2 {
		t.Errorf("cases = %d, want 2 after repeated confirm", len(f.cases))
	}
}

func TestConfirmAggregatesIntoExistingCase(t *testing.T) {
	f := newCaseFixture()
	f.addUser("alice")
	f.addUser("bob")
	f.addUser("carol")
	f.addComparison(1, 100, "alice", "bob")
	f.addComparison(2, 100, "alice", "carol")

	svc, _ := newCaseService(f)
	if err := svc.ConfirmComparison(1, false, false); err != nil {
		t.Fatal(err)
	}
	if err := svc.ConfirmComparison(2, false, false); err != nil {
		t.Fatal(err)
	}

	aliceCase, err := f.FindByStudentAndExercise("alice", 100)
	if err != nil {
		t.Fatal("no case for alice")
	}
	if n, _ := f.CountSubmissions(aliceCase.ID); n != 2 {
		t.Errorf("alice case references %d submissions, want 2", n)
	}
	if len(f.cases) != 3 {
		t.Errorf("cases = %d, want 3", len(f.cases))
	}
}

func TestConfirmSkipsUnresolvableIdentity(t *testing.T) {
	f := newCaseFixture()
	f.addUser("alice")
	// "team-7" 没有对应用户
	f.addComparison(1, 100, "alice", "team-7")

	svc, _ := newCaseService(f)
	if err := svc.ConfirmComparison(1, false, false); err != nil {
		t.Fatalf("ConfirmComparison: %v", err)
	}

	if got := f.comparisons[1].Status; got != model.StatusConfirmed {
		t.Errorf("status = %s, want CONFIRMED despite missing user", got)
	}
	if len(f.cases) != 1 {
		t.Errorf("cases = %d, want 1 (alice only)", len(f.cases))
	}
}

func TestDenyDeletesEmptyCase(t *testing.T) {
	f := newCaseFixture()
	f.addUser("alice")
	f.addUser("bob")
	f.addComparison(1, 100, "alice", "bob")

	svc, _ := newCaseService(f)
	if err := svc.ConfirmComparison(1, false, false); err != nil {
		t.Fatal(err)
	}
	if err := svc.DenyComparison(1); err != nil {
		t.Fatalf("DenyComparison: %v", err)
	}

	if got := f.comparisons[1].Status; got != model.StatusDenied {
		t.Errorf("status = %s, want DENIED", got)
	}
	if len(f.cases) != 0 {
		t.Errorf("cases = %d, want 0 after eager cleanup", len(f.cases))
	}
}

func TestDenyKeepsCaseWithRemainingSubmissions(t *testing.T) {
	f := newCaseFixture()
	f.addUser("alice")
	f.addUser("bob")
	f.addUser("carol")
	f.addComparison(1, 100, "alice", "bob")
	f.addComparison(2, 100, "alice", "carol")

	svc, _ := newCaseService(f)
	if err := svc.ConfirmComparison(1, false, false); err != nil {
		t.Fatal(err)
	}
	if err := svc.ConfirmComparison(2, false, false); err != nil {
		t.Fatal(err)
	}
	if err := svc.DenyComparison(1); err != nil {
		t.Fatal(err)
	}

	// alice 的案件仍被比较 2 的提交支撑；bob 的案件应已删除
	if _, err := f.FindByStudentAndExercise("alice", 100); err != nil {
		t.Error("alice case was deleted while still referenced")
	}
	if _, err := f.FindByStudentAndExercise("bob", 100); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Error("bob case should have been deleted")
	}
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	f := newCaseFixture()
	svc, _ := newCaseService(f)
	if err := svc.UpdateStatus(1, model.StatusNone); !errors.Is(err, util.ErrInvalidStatus) {
		t.Errorf("got %v, want ErrInvalidStatus", err)
	}
}

func TestUpdateVerdictAlwaysNotifies(t *testing.T) {
	f := newCaseFixture()
	f.addUser("alice")
	f.addUser("bob")
	f.addComparison(1, 100, "alice", "bob")

	svc, mailer := newCaseService(f)
	if err := svc.ConfirmComparison(1, false, false); err != nil {
		t.Fatal(err)
	}
	aliceCase, _ := f.FindByStudentAndExercise("alice", 100)

	// 案件尚未通知学生，裁定仍然要发通知
	updated, err := svc.UpdateVerdict(aliceCase.ID, model.VerdictPointDeduction, 20, "", 9)
	if err != nil {
		t.Fatalf("UpdateVerdict: %v", err)
	}
	if updated.VerdictPointDeduction != 20 {
		t.Errorf("pointDeduction = %d, want 20", updated.VerdictPointDeduction)
	}
	if updated.VerdictDate == nil || updated.VerdictByID == nil || *updated.VerdictByID != 9 {
		t.Error("verdict metadata not recorded")
	}
	if len(mailer.verdicts) != 1 || mailer.verdicts[0] != "alice" {
		t.Errorf("verdict notifications = %v, want [alice]", mailer.verdicts)
	}

	// 改判为警告后扣分应清零
	updated, err = svc.UpdateVerdict(aliceCase.ID, model.VerdictWarning, 0, "first offence", 9)
	if err != nil {
		t.Fatal(err)
	}
	if updated.VerdictPointDeduction != 0 || updated.VerdictMessage != "first offence" {
		t.Errorf("verdict fields not reset: %+v", updated)
	}
}

func TestUpdateVerdictRejectsUnknownVerdict(t *testing.T) {
	f := newCaseFixture()
	svc, _ := newCaseService(f)
	if _, err := svc.UpdateVerdict(1, model.PlagiarismVerdict("GUILTY"), 0, "", 1); err == nil {
		t.Error("expected error for unknown verdict")
	}
}

func TestStudentSeesCaseOnlyAfterNotification(t *testing.T) {
	f := newCaseFixture()
	f.addUser("alice")
	f.addUser("bob")
	f.addComparison(1, 100, "alice", "bob")

	svc, _ := newCaseService(f)
	// notify=false：案件存在但学生未被告知
	if err := svc.ConfirmComparison(1, false, false); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GetCaseInfoForStudent(100, "alice"); !errors.Is(err, util.ErrCaseNotFound) {
		t.Errorf("unnotified case visible to student: %v", err)
	}

	aliceCase, _ := f.FindByStudentAndExercise("alice", 100)
	if err := f.AttachPost(aliceCase.ID, &model.Post{RecipientLogin: "alice"}); err != nil {
		t.Fatal(err)
	}

	info, err := svc.GetCaseInfoForStudent(100, "alice")
	if err != nil {
		t.Fatalf("GetCaseInfoForStudent: %v", err)
	}
	if info.ID != aliceCase.ID {
		t.Errorf("info.ID = %d, want %d", info.ID, aliceCase.ID)
	}

	if _, err := svc.GetCaseInfoForStudent(100, "nobody"); !errors.Is(err, util.ErrCaseNotFound) {
		t.Errorf("missing case: got %v, want ErrCaseNotFound", err)
	}
}

func TestReconcileRemovesOnlyEmptyContinuousControlCases(t *testing.T) {
	f := newCaseFixture()
	f.addUser("alice")
	f.addUser("bob")
	f.addComparison(1, 100, "alice", "bob")

	svc, _ := newCaseService(f)
	if err := svc.ConfirmComparison(1, true, false); err != nil {
		t.Fatal(err)
	}

	// 新一轮结果不再支持 bob：摘下他的提交
	bobCase, _ := f.FindByStudentAndExercise("bob", 100)
	comparison, _ := f.FindByIDWithSubmissions(1)
	if err := f.UpdateSubmissionCaseID(comparison.SubmissionB.ID, nil); err != nil {
		t.Fatal(err)
	}

	removed, err := svc.ReconcileContinuousControlCases(100)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := f.FindByID(bobCase.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Error("empty continuous control case survived reconciliation")
	}
	if _, err := f.FindByStudentAndExercise("alice", 100); err != nil {
		t.Error("supported case was removed")
	}
}

// fixedComparator 任意配对都打同一个分
type fixedComparator struct{ score float64 }

func (c fixedComparator) Compare(_, _ []string) float64 { return c.score }

// 引擎命中一对提交、教师确认、双方各得一个案件的完整链路
func TestEngineHitThroughConfirmation(t *testing.T) {
	elements := make([]string, 50)
	for i := range elements {
		elements[i] = "tok"
	}

	engine := NewComparisonEngine(fixedComparator{0.92}, nil, 2)
	candidates := []model.PlagiarismSubmission{
		{SubmissionID: 501, StudentLogin: "alice", Size: 50, Elements: elements},
		{SubmissionID: 502, StudentLogin: "bob", Size: 50, Elements: elements},
	}

	result, err := engine.Run(context.Background(), 100, candidates, 80, 10)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Comparisons) != 1 {
		t.Fatalf("comparisons = %d, want 1", len(result.Comparisons))
	}
	if got := result.Comparisons[0].Similarity; got != 92.0 {
		t.Fatalf("similarity = %v, want 92.0", got)
	}

	// 把引擎产出的比较落到存储里，再走确认路径
	f := newCaseFixture()
	f.addUser("alice")
	f.addUser("bob")
	subA := result.Comparisons[0].SubmissionA
	subB := result.Comparisons[0].SubmissionB
	subA.ID, subB.ID = 10, 11
	f.submissions[subA.ID] = &subA
	f.submissions[subB.ID] = &subB
	stored := &model.PlagiarismComparison{
		SubmissionAID: subA.ID,
		SubmissionBID: subB.ID,
		Similarity:    result.Comparisons[0].Similarity,
		Status:        model.StatusNone,
	}
	stored.ID = 1
	f.comparisons[1] = stored
	f.exercises[1] = 100

	svc, _ := newCaseService(f)
	if err := svc.ConfirmComparison(1, false, true); err != nil {
		t.Fatalf("ConfirmComparison: %v", err)
	}

	for login, submissionID := range map[string]uint{"alice": 501, "bob": 502} {
		c, err := f.FindByStudentAndExercise(login, 100)
		if err != nil {
			t.Fatalf("no case for %s", login)
		}
		found := false
		for _, s := range f.submissions {
			if s.CaseID != nil && *s.CaseID == c.ID && s.SubmissionID == submissionID {
				found = true
			}
		}
		if !found {
			t.Errorf("case of %s does not reference submission %d", login, submissionID)
		}
	}
}
