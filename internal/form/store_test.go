package form

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestNewStore(t *testing.T) {
	store := NewStore("/tmp/test-form.json")

	if store.Path() != "/tmp/test-form.json" {
		t.Errorf("expected filePath /tmp/test-form.json, got %s", store.Path())
	}
	if store.Step() != 1 {
		t.Errorf("expected step 1, got %d", store.Step())
	}
	if len(store.Values()) != 0 {
		t.Error("new store should have no values")
	}
}

func TestStore_Load_FileDoesNotExist(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "form.json"))

	if err := store.Load(); err != nil {
		t.Errorf("Load() should not error when file doesn't exist, got: %v", err)
	}
	if len(store.Values()) != 0 {
		t.Error("store should be empty when file doesn't exist")
	}
}

func TestStore_Load_ValidFile(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "form.json")

	snap := NewSnapshot()
	snap.Values[TenantName] = "Иванов Петр Сергеевич"
	snap.Values["legacyField"] = "dropped"
	snap.Residents = []Resident{{Name: "Иванова Анна", Birthdate: "2010-05-01"}}
	snap.CurrentStep = 3

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		t.Fatalf("failed to marshal test snapshot: %v", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		t.Fatalf("failed to write test form file: %v", err)
	}

	store := NewStore(filePath)
	if err := store.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if v, _ := store.Value(TenantName); v != "Иванов Петр Сергеевич" {
		t.Errorf("expected tenant name, got %q", v)
	}
	if _, ok := store.Value("legacyField"); ok {
		t.Error("unknown keys should be dropped on load")
	}
	if store.Step() != 3 {
		t.Errorf("expected step 3, got %d", store.Step())
	}
	if got := store.Residents(); len(got) != 1 || got[0].Birthdate != "2010-05-01" {
		t.Errorf("unexpected residents: %+v", got)
	}
}

func TestStore_Load_InvalidJSON(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "form.json")
	if err := os.WriteFile(filePath, []byte("{ not json"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	if err := NewStore(filePath).Load(); err == nil {
		t.Error("Load() should error on invalid JSON")
	}
}

func TestStore_Load_WrongVersion(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "form.json")
	if err := os.WriteFile(filePath, []byte(`{"version": 99, "values": {}}`), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	if err := NewStore(filePath).Load(); err == nil {
		t.Error("Load() should error on unsupported version")
	}
}

func TestStore_SaveAndReload(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "nested", "form.json")

	store := NewStore(filePath)
	if err := store.Set(ApartmentAddress, "г. Москва, ул. Тверская, д. 1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.AddResident(Resident{Name: "Петров Иван"}); err != nil {
		t.Fatalf("AddResident() error = %v", err)
	}
	if err := store.SetStep(4); err != nil {
		t.Fatalf("SetStep() error = %v", err)
	}

	if _, err := os.Stat(filePath + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should not remain after save")
	}

	reloaded := NewStore(filePath)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(store.Values(), reloaded.Values()) {
		t.Errorf("values mismatch: %v vs %v", store.Values(), reloaded.Values())
	}
	if reloaded.Step() != 4 {
		t.Errorf("expected step 4, got %d", reloaded.Step())
	}
	if len(reloaded.Residents()) != 1 {
		t.Errorf("expected 1 resident, got %d", len(reloaded.Residents()))
	}
}

func TestStore_SetUnknownKey(t *testing.T) {
	store := NewStore("")
	err := store.Set("tenantShoeSize", "42")
	if !errors.Is(err, ErrUnknownKey) {
		t.Errorf("expected ErrUnknownKey, got %v", err)
	}
}

func TestStore_SetEmptyClears(t *testing.T) {
	store := NewStore("")
	_ = store.Set(RentAmount, "30000")
	_ = store.Set(RentAmount, "  ")
	if _, ok := store.Value(RentAmount); ok {
		t.Error("empty value should clear the field")
	}
}

func TestStore_SuggestionsAreNotCommitted(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "form.json")
	store := NewStore(filePath)

	if err := store.Suggest("scan-1", map[Key]string{TenantName: "Иванов Петр Сергеевич"}); err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}

	if _, ok := store.Value(TenantName); ok {
		t.Error("suggestion must not be visible as a committed value")
	}
	if got := store.Pending(); len(got) != 1 || got[0].Owner != "scan-1" {
		t.Errorf("unexpected pending: %+v", got)
	}

	if err := store.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("failed to read form file: %v", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("failed to parse form file: %v", err)
	}
	if len(snap.Values) != 0 {
		t.Errorf("pending suggestions must not be persisted, got %v", snap.Values)
	}
}

func TestStore_CommitWithOverrides(t *testing.T) {
	store := NewStore("")
	_ = store.Set(TenantRegistration, "г. Тверь")
	_ = store.Suggest("scan-1", map[Key]string{
		TenantName:     "Иванов Петр Сергеевич",
		TenantPassport: "4506 123456",
		TenantIssuedBy: "ОВД района",
	})

	applied, err := store.Commit("scan-1", map[Key]string{
		TenantPassport:     "4506 123457",
		TenantDivisionCode: "770-001",
		TenantIssuedBy:     "",
	})
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	want := map[Key]string{
		TenantName:         "Иванов Петр Сергеевич",
		TenantPassport:     "4506 123457",
		TenantDivisionCode: "770-001",
	}
	if !reflect.DeepEqual(applied, want) {
		t.Errorf("applied = %v, want %v", applied, want)
	}

	want[TenantRegistration] = "г. Тверь"
	if !reflect.DeepEqual(store.Values(), want) {
		t.Errorf("values = %v, want %v", store.Values(), want)
	}
	if len(store.Pending()) != 0 {
		t.Error("commit should clear the owner's suggestions")
	}
}

func TestStore_CommitOnlyOwner(t *testing.T) {
	store := NewStore("")
	_ = store.Suggest("scan-1", map[Key]string{TenantName: "Старый Вариант Имени"})
	_ = store.Suggest("scan-2", map[Key]string{TenantPassport: "1111 222222"})

	applied, err := store.Commit("scan-2", nil)
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if len(applied) != 1 || applied[TenantPassport] != "1111 222222" {
		t.Errorf("unexpected applied: %v", applied)
	}
	if _, ok := store.Value(TenantName); ok {
		t.Error("other owner's suggestion must not be committed")
	}
	if got := store.Pending(); len(got) != 1 || got[0].Owner != "scan-1" {
		t.Errorf("other owner's suggestion should stay pending: %+v", got)
	}
}

func TestStore_CommitIfStale(t *testing.T) {
	store := NewStore("")
	_ = store.Suggest("scan-1", map[Key]string{TenantName: "Иванов Петр Сергеевич"})

	applied, err := store.CommitIf("scan-1", nil, func() bool { return false })
	if !errors.Is(err, ErrStale) {
		t.Fatalf("CommitIf() error = %v, want ErrStale", err)
	}
	if applied != nil {
		t.Errorf("applied = %v, want nil", applied)
	}
	if len(store.Values()) != 0 {
		t.Errorf("stale suggestions must not be committed, got %v", store.Values())
	}
	if len(store.Pending()) != 0 {
		t.Error("stale suggestions should be dropped")
	}

	_ = store.Suggest("scan-2", map[Key]string{TenantName: "Петров Иван Ильич"})
	if _, err := store.CommitIf("scan-2", nil, func() bool { return true }); err != nil {
		t.Fatalf("CommitIf() error = %v", err)
	}
	if v, _ := store.Value(TenantName); v != "Петров Иван Ильич" {
		t.Errorf("TenantName = %q", v)
	}
}

func TestStore_Discard(t *testing.T) {
	store := NewStore("")
	_ = store.Set(LandlordName, "Сидоров Олег Петрович")
	_ = store.Suggest("scan-1", map[Key]string{LandlordName: "Сидоров Олег Павлович", LandlordPassport: "4506 123456"})

	if n := store.Discard("scan-1"); n != 2 {
		t.Errorf("Discard() = %d, want 2", n)
	}
	if v, _ := store.Value(LandlordName); v != "Сидоров Олег Петрович" {
		t.Errorf("discard must keep the previously entered value, got %q", v)
	}
	if _, ok := store.Value(LandlordPassport); ok {
		t.Error("discarded suggestion must not be committed")
	}
}

func TestStore_CommitSaveFailureLeavesValuesUntouched(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatalf("failed to write blocker: %v", err)
	}

	// The parent of the form file is a regular file, so saving fails.
	store := NewStore(filepath.Join(blocker, "form.json"))
	_ = store.Suggest("scan-1", map[Key]string{TenantName: "Иванов Петр Сергеевич"})

	if _, err := store.Commit("scan-1", nil); err == nil {
		t.Fatal("Commit() should fail when the snapshot cannot be written")
	}
	if len(store.Values()) != 0 {
		t.Errorf("no values should be applied after a failed commit, got %v", store.Values())
	}
	if len(store.Pending()) != 0 {
		t.Error("failed commit should roll back the suggestions")
	}
}

func TestStore_Missing(t *testing.T) {
	store := NewStore("")

	missing := store.Missing()
	if len(missing) != len(AllKeys)+1 {
		t.Fatalf("expected %d missing, got %d", len(AllKeys)+1, len(missing))
	}
	if missing[len(missing)-1] != ResidentsField {
		t.Errorf("expected residents last, got %s", missing[len(missing)-1])
	}

	for _, k := range AllKeys {
		_ = store.Set(k, "x")
	}
	_ = store.AddResident(Resident{Name: "Петров Иван"})

	if missing := store.Missing(); len(missing) != 0 {
		t.Errorf("expected nothing missing, got %v", missing)
	}
}

func TestStore_Residents(t *testing.T) {
	store := NewStore("")
	if err := store.AddResident(Resident{Name: " "}); err == nil {
		t.Error("AddResident() should reject empty names")
	}
	_ = store.AddResident(Resident{Name: "А"})
	_ = store.AddResident(Resident{Name: "Б"})

	if err := store.RemoveResident(5); err == nil {
		t.Error("RemoveResident() should reject out of range index")
	}
	if err := store.RemoveResident(0); err != nil {
		t.Fatalf("RemoveResident() error = %v", err)
	}
	if got := store.Residents(); len(got) != 1 || got[0].Name != "Б" {
		t.Errorf("unexpected residents: %+v", got)
	}
}

func TestStore_Reset(t *testing.T) {
	store := NewStore("")
	_ = store.Set(RentAmount, "30000")
	_ = store.SetStep(5)
	_ = store.Suggest("scan-1", map[Key]string{TenantName: "Иванов Петр Сергеевич"})

	store.Reset()

	if len(store.Values()) != 0 || len(store.Pending()) != 0 || store.Step() != 1 {
		t.Error("Reset() should clear values, suggestions and step")
	}
}

func TestLoadOrCreate(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "form.json")

	store, err := LoadOrCreate(filePath)
	if err != nil {
		t.Fatalf("LoadOrCreate() error = %v", err)
	}
	if _, err := os.Stat(filePath); err != nil {
		t.Errorf("LoadOrCreate() should create the file: %v", err)
	}

	_ = store.Set(ContractStart, "2026-11-01")

	again, err := LoadOrCreate(filePath)
	if err != nil {
		t.Fatalf("LoadOrCreate() error = %v", err)
	}
	if v, _ := again.Value(ContractStart); v != "2026-11-01" {
		t.Errorf("expected persisted value, got %q", v)
	}
}
