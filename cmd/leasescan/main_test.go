package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(home))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return home
}

const rawPassport = `РОССИЙСКАЯ ФЕДЕРАЦИЯ
Паспорт выдан ОТДЕЛОМ УФМС РОССИИ ПО Г. МОСКВЕ
Дата выдачи 12.03.2015 код подразделения 770-001
4510 123456
Иванов Иван Иванович`

func TestVersion(t *testing.T) {
	out, err := runCLI(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "leasescan version dev")
	assert.Contains(t, out, "OS/Arch:")
}

func TestExtract_FromStdin(t *testing.T) {
	isolateHome(t)

	out, err := runCLI(t, rawPassport, "extract")
	require.NoError(t, err)
	assert.Contains(t, out, "4510 123456")
	assert.Contains(t, out, "2015-03-12")
	assert.Contains(t, out, "Иванов Иван Иванович")
	assert.Contains(t, out, "770-001")
}

func TestExtract_FromFileWithRole(t *testing.T) {
	home := isolateHome(t)
	path := filepath.Join(home, "raw.txt")
	require.NoError(t, os.WriteFile(path, []byte("no passport here"), 0644))

	out, err := runCLI(t, "", "extract", "--role", "landlord", path)
	require.NoError(t, err)
	assert.Contains(t, out, "landlordPassport")
	assert.Contains(t, out, "not found")
}

func TestForm_SetShowCheckReset(t *testing.T) {
	home := isolateHome(t)
	formFile := filepath.Join(home, "form.json")

	_, err := runCLI(t, "", "form", "set", "--form-file", formFile, "rentAmount=45000", "tenantName=Петров Пётр")
	require.NoError(t, err)

	out, err := runCLI(t, "", "form", "show", "--form-file", formFile)
	require.NoError(t, err)
	assert.Contains(t, out, "45000")
	assert.Contains(t, out, "Петров Пётр")

	_, err = runCLI(t, "", "form", "set", "--form-file", formFile, "bogus=1")
	assert.Error(t, err)

	out, err = runCLI(t, "", "form", "check", "--form-file", formFile)
	assert.Error(t, err)
	assert.Contains(t, out, "landlordName is empty")
	assert.Contains(t, out, "residents is empty")

	_, err = runCLI(t, "", "form", "resident", "add", "--form-file", formFile, "Петрова Анна")
	require.NoError(t, err)
	out, err = runCLI(t, "", "form", "show", "--form-file", formFile)
	require.NoError(t, err)
	assert.Contains(t, out, "1. Петрова Анна")

	_, err = runCLI(t, "", "form", "reset", "--form-file", formFile)
	require.NoError(t, err)
	out, err = runCLI(t, "", "form", "show", "--form-file", formFile)
	require.NoError(t, err)
	assert.NotContains(t, out, "45000")
	assert.Contains(t, out, "none")
}

func TestScan_RequiresImage(t *testing.T) {
	isolateHome(t)

	_, err := runCLI(t, "", "scan")
	assert.ErrorContains(t, err, "no image given")
}
