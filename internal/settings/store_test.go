package settings

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"testing"

	"github.com/dukerupert/tasknotify/internal/model"
)

type fakeAPI struct {
	settings model.NotificationSettings
	getErr   error
	putErr   error
	gets     int
	puts     []model.SettingsPatch
}

func (f *fakeAPI) Get(context.Context) (model.NotificationSettings, error) {
	f.gets++
	if f.getErr != nil {
		return model.NotificationSettings{}, f.getErr
	}
	return f.settings.Clone(), nil
}

func (f *fakeAPI) Put(_ context.Context, p model.SettingsPatch) error {
	f.puts = append(f.puts, p)
	if f.putErr != nil {
		return f.putErr
	}
	f.settings = p.Apply(f.settings)
	return nil
}

func ptr[T any](v T) *T { return &v }

func TestLoadFallsBackToDefaults(t *testing.T) {
	api := &fakeAPI{getErr: errors.New("503")}
	s := NewStore(api, slog.Default())

	got := s.Load(context.Background())

	if !reflect.DeepEqual(got, model.DefaultNotificationSettings()) {
		t.Errorf("settings = %+v, want defaults", got)
	}
	if s.Err() == nil || s.Err().Error() != "503" {
		t.Errorf("err = %v, want 503", s.Err())
	}
	cur, ok := s.Current()
	if !ok {
		t.Fatal("expected settings to be loaded")
	}
	if !reflect.DeepEqual(cur, got) {
		t.Errorf("current = %+v, want %+v", cur, got)
	}
}

func TestLoadUsesRemote(t *testing.T) {
	remote := model.DefaultNotificationSettings()
	remote.ToastEnabled = false
	remote.ReminderLeadTimes = []model.LeadTime{"1d"}
	s := NewStore(&fakeAPI{settings: remote}, slog.Default())

	got := s.Load(context.Background())

	if !reflect.DeepEqual(got, remote) {
		t.Errorf("settings = %+v, want %+v", got, remote)
	}
	if s.Err() != nil {
		t.Errorf("err = %v", s.Err())
	}
}

func TestUpdateSendsOnlyDiff(t *testing.T) {
	api := &fakeAPI{settings: model.DefaultNotificationSettings()}
	s := NewStore(api, slog.Default())
	s.Load(context.Background())

	err := s.Update(context.Background(), model.SettingsPatch{
		ToastEnabled: ptr(true),
		SoundEnabled: ptr(false),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if len(api.puts) != 1 {
		t.Fatalf("expected 1 PUT, got %d", len(api.puts))
	}
	if api.puts[0].ToastEnabled != nil {
		t.Error("unchanged toastEnabled was sent")
	}
	if api.puts[0].SoundEnabled == nil || *api.puts[0].SoundEnabled {
		t.Errorf("soundEnabled = %v, want false", api.puts[0].SoundEnabled)
	}

	cur, _ := s.Current()
	if cur.SoundEnabled || !cur.ToastEnabled {
		t.Errorf("current = %+v", cur)
	}
}

func TestUpdateEmptyDiffSendsNothing(t *testing.T) {
	remote := model.DefaultNotificationSettings()
	remote.ToastEnabled = false
	api := &fakeAPI{settings: remote}
	s := NewStore(api, slog.Default())
	s.Load(context.Background())

	if err := s.Update(context.Background(), model.SettingsPatch{ToastEnabled: ptr(false)}); err != nil {
		t.Fatalf("update same value: %v", err)
	}
	if err := s.Update(context.Background(), model.SettingsPatch{}); err != nil {
		t.Fatalf("update empty patch: %v", err)
	}

	if len(api.puts) != 0 {
		t.Errorf("expected no PUT, got %d", len(api.puts))
	}
}

func TestUpdateFailureKeepsPreviousSettings(t *testing.T) {
	api := &fakeAPI{settings: model.DefaultNotificationSettings()}
	s := NewStore(api, slog.Default())
	before := s.Load(context.Background())
	api.putErr = &StatusError{Method: "PUT", Code: 500}

	err := s.Update(context.Background(), model.SettingsPatch{BrowserEnabled: ptr(false)})

	var se *StatusError
	if !errors.As(err, &se) || se.Code != 500 {
		t.Fatalf("err = %v, want status 500", err)
	}
	cur, _ := s.Current()
	if !reflect.DeepEqual(cur, before) {
		t.Errorf("current = %+v, want %+v", cur, before)
	}
	if s.Err() == nil {
		t.Error("expected Err to report the failed update")
	}
}

func TestUpdateRejectsInvalidPatch(t *testing.T) {
	api := &fakeAPI{settings: model.DefaultNotificationSettings()}
	s := NewStore(api, slog.Default())
	s.Load(context.Background())

	err := s.Update(context.Background(), model.SettingsPatch{
		ReminderLeadTimes: ptr([]model.LeadTime{"1h", "1h"}),
	})

	if !errors.Is(err, ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
	if len(api.puts) != 0 {
		t.Errorf("invalid patch was sent: %d PUTs", len(api.puts))
	}
}

func TestLoginLogout(t *testing.T) {
	api := &fakeAPI{settings: model.DefaultNotificationSettings()}
	s := NewStore(api, slog.Default())

	s.OnLogin(context.Background())
	if _, ok := s.Current(); !ok {
		t.Error("expected settings after login")
	}

	s.OnLogout()
	if _, ok := s.Current(); ok {
		t.Error("expected no settings after logout")
	}
	if !reflect.DeepEqual(s.Effective(), model.DefaultNotificationSettings()) {
		t.Errorf("effective = %+v, want defaults", s.Effective())
	}

	s.OnLogin(context.Background())
	if api.gets != 2 {
		t.Errorf("gets = %d, want 2", api.gets)
	}
}
