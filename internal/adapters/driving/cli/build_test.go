package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCmd_Use(t *testing.T) {
	assert.Equal(t, "build", buildCmd.Use)
}

func TestBuildCmd_HasForceFlag(t *testing.T) {
	flag := buildCmd.Flags().Lookup("force")
	require.NotNil(t, flag, "force flag should exist")
	assert.Equal(t, "f", flag.Shorthand)
	assert.Equal(t, "false", flag.DefValue)
}

func TestBuildCmd_Executes(t *testing.T) {
	fake, cleanup := setupTestServices(t)
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"build"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	require.NoError(t, rootCmd.Execute())

	assert.Equal(t, 1, fake.ensured)
	assert.False(t, fake.lastForce)
	assert.Contains(t, buf.String(), "ready")
	assert.Contains(t, buf.String(), "Records: 42 from 3 files")
}

func TestBuildCmd_ForcePassedThrough(t *testing.T) {
	fake, cleanup := setupTestServices(t)
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"build", "--force"})
	defer func() {
		rootCmd.SetArgs(nil)
		buildForce = false
	}()

	require.NoError(t, rootCmd.Execute())
	assert.True(t, fake.lastForce)
}

func TestImportCmd_RequiresExactlyOneArg(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"import"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestImportCmd_ImportsAndBuilds(t *testing.T) {
	fake, cleanup := setupTestServices(t)
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"import", "export.zip"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	require.NoError(t, rootCmd.Execute())

	assert.Equal(t, []string{"default:export.zip"}, fake.imported)
	assert.Equal(t, 1, fake.ensured)
	assert.Contains(t, buf.String(), "Archive imported.")
}

func TestImportCmd_SkipIndex(t *testing.T) {
	fake, cleanup := setupTestServices(t)
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"import", "export.zip", "--skip-index"})
	defer func() {
		rootCmd.SetArgs(nil)
		importSkipIndex = false
	}()

	require.NoError(t, rootCmd.Execute())

	assert.Zero(t, fake.ensured)
	assert.Contains(t, buf.String(), "arkiv build")
}

func TestImportCmd_DatasetFlag(t *testing.T) {
	fake, cleanup := setupTestServices(t)
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"import", "export.zip", "-d", "personal"})
	defer func() {
		rootCmd.SetArgs(nil)
		datasetID = "default"
	}()

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, []string{"personal:export.zip"}, fake.imported)
}

func TestStatusCmd_Executes(t *testing.T) {
	_, cleanup := setupTestServices(t)
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"status"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "absent")
}

func TestVersionCmd_Executes(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"version"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "arkiv version dev")
}
