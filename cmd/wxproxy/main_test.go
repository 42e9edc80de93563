package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemplate(t *testing.T, name, raw string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))
	return path
}

func TestLoadTemplateMessageYAML(t *testing.T) {
	path := writeTemplate(t, "msg.yaml", `
openid: o-1
templateId: tpl-1
url: https://example.com
miniProgram:
  appId: mini
  pagePath: index?foo=bar
data:
  first:
    value: hello
`)

	req, err := loadTemplateMessage(path)
	require.NoError(t, err)
	assert.Equal(t, "o-1", req.OpenID)
	assert.Equal(t, "tpl-1", req.TemplateID)
	require.NotNil(t, req.MiniProgram)
	assert.Equal(t, "index?foo=bar", req.MiniProgram.PagePath)
	assert.Equal(t, "hello", req.Data["first"].Value)
}

func TestLoadTemplateMessageJSON(t *testing.T) {
	path := writeTemplate(t, "msg.json", `{"openid":"o","templateId":"t","uuid":"u-1","data":{}}`)

	req, err := loadTemplateMessage(path)
	require.NoError(t, err)
	assert.Equal(t, "u-1", req.UUID)
}

func TestLoadTemplateMessageErrors(t *testing.T) {
	_, err := loadTemplateMessage("")
	assert.Error(t, err)

	_, err = loadTemplateMessage(writeTemplate(t, "msg.yaml", "data: {}\n"))
	assert.ErrorContains(t, err, "openid")

	_, err = loadTemplateMessage(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestRunUsage(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, run(nil, &out))
	assert.Contains(t, out.String(), "usage: wxproxy")

	out.Reset()
	assert.NoError(t, run([]string{"help"}, &out))

	out.Reset()
	assert.ErrorContains(t, run([]string{"bogus"}, &out), "unknown command")
}
