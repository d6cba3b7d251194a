package service

import (
	"errors"
	"strings"
	"testing"

	"plagiarism_backend/internal/model"
)

type fakePostAttacher struct {
	posts map[uint]*model.Post
	err   error
}

func (f *fakePostAttacher) AttachPost(caseID uint, post *model.Post) error {
	if f.err != nil {
		return f.err
	}
	if f.posts == nil {
		f.posts = map[uint]*model.Post{}
	}
	f.posts[caseID] = post
	return nil
}

type failingMailer struct {
	notifyCalls  int
	verdictCalls int
}

func (m *failingMailer) Notify(*model.PlagiarismCase, *model.User) error {
	m.notifyCalls++
	return errors.New("smtp unreachable")
}

func (m *failingMailer) NotifyVerdict(*model.PlagiarismCase, *model.User) error {
	m.verdictCalls++
	return errors.New("smtp unreachable")
}

func notificationCase(id uint) *model.PlagiarismCase {
	course := &model.Course{Title: "算法设计"}
	exercise := &model.Exercise{Title: "红黑树", Course: course}
	pc := &model.PlagiarismCase{Exercise: exercise}
	pc.ID = id
	return pc
}

func TestBuildCasePostLocalization(t *testing.T) {
	svc := NewNotificationService(&fakePostAttacher{}, nil, "https://example.edu/conduct")
	pc := notificationCase(1)

	zhPost := svc.BuildCasePost(pc, &model.User{Login: "alice", Language: "zh"})
	if zhPost.Language != "zh" {
		t.Errorf("language = %q, want zh", zhPost.Language)
	}
	for _, want := range []string{"算法设计", "红黑树", "https://example.edu/conduct"} {
		if !strings.Contains(zhPost.Content, want) {
			t.Errorf("zh content missing %q:\n%s", want, zhPost.Content)
		}
	}

	// 未知语言回落到英文
	enPost := svc.BuildCasePost(pc, &model.User{Login: "bob", Language: "fr"})
	if enPost.Language != "en" {
		t.Errorf("language = %q, want en fallback", enPost.Language)
	}
	for _, want := range []string{"算法设计", "红黑树", "https://example.edu/conduct"} {
		if !strings.Contains(enPost.Content, want) {
			t.Errorf("en content missing %q:\n%s", want, enPost.Content)
		}
	}
	if enPost.RecipientLogin != "bob" {
		t.Errorf("recipient = %q, want bob", enPost.RecipientLogin)
	}
}

func TestBuildCasePostWithoutExerciseContext(t *testing.T) {
	svc := NewNotificationService(&fakePostAttacher{}, nil, "https://example.edu/conduct")
	pc := &model.PlagiarismCase{}
	pc.ID = 2

	post := svc.BuildCasePost(pc, &model.User{Login: "alice", Language: "en"})
	if post.Title == "" || post.Content == "" {
		t.Error("post must still be built when exercise is not preloaded")
	}
}

func TestNotifyCaseAttachesPostAndSurvivesMailFailure(t *testing.T) {
	attacher := &fakePostAttacher{}
	mailer := &failingMailer{}
	svc := NewNotificationService(attacher, mailer, "https://example.edu/conduct")

	if err := svc.NotifyCase(notificationCase(3), &model.User{Login: "alice"}); err != nil {
		t.Fatalf("mail failure must not bubble up, got %v", err)
	}
	if attacher.posts[3] == nil {
		t.Error("post was not attached")
	}
	if mailer.notifyCalls != 1 {
		t.Errorf("notify calls = %d, want 1", mailer.notifyCalls)
	}
}

func TestNotifyCasePropagatesAttachFailure(t *testing.T) {
	attacher := &fakePostAttacher{err: errors.New("deadlock")}
	mailer := &failingMailer{}
	svc := NewNotificationService(attacher, mailer, "")

	if err := svc.NotifyCase(notificationCase(4), &model.User{Login: "alice"}); err == nil {
		t.Fatal("attach failure must be returned")
	}
	// 挂帖失败就不该发邮件，学生看不到帖子时邮件是空承诺
	if mailer.notifyCalls != 0 {
		t.Errorf("notify calls = %d, want 0", mailer.notifyCalls)
	}
}

func TestNotifyVerdictSwallowsMailFailure(t *testing.T) {
	mailer := &failingMailer{}
	svc := NewNotificationService(&fakePostAttacher{}, mailer, "")

	svc.NotifyVerdict(notificationCase(5), &model.User{Login: "alice"})
	if mailer.verdictCalls != 1 {
		t.Errorf("verdict calls = %d, want 1", mailer.verdictCalls)
	}
}

func TestNilMailerDefaultsToNoop(t *testing.T) {
	svc := NewNotificationService(&fakePostAttacher{}, nil, "")
	if err := svc.NotifyCase(notificationCase(6), &model.User{Login: "alice"}); err != nil {
		t.Fatalf("noop mailer should never fail: %v", err)
	}
}
