// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

package chimglib

import (
	"testing"

	"github.com/canonical/chimg/chimgapi"
	"github.com/stretchr/testify/assert"
)

func TestPPAPaths(t *testing.T) {
	sources, key, auth, pin := ppaPaths("cloud-init-daily")

	assert.Equal(t, "etc/apt/sources.list.d/cloud-init-daily.sources", sources)
	assert.Equal(t, "etc/apt/trusted.gpg.d/cloud-init-daily.gpg", key)
	assert.Equal(t, "etc/apt/auth.conf.d/cloud-init-daily.conf", auth)
	assert.Equal(t, "etc/apt/preferences.d/cloud-init-daily.pref", pin)
}

func TestSourcesFileContent(t *testing.T) {
	ppa := &chimgapi.PPA{
		Name:       "cloud-init-daily",
		URI:        "https://ppa.launchpadcontent.net/cloud-init-dev/daily/ubuntu",
		Suites:     []string{"noble"},
		Components: []string{"main"},
	}

	content := sourcesFileContent(ppa, "/etc/apt/trusted.gpg.d/cloud-init-daily.gpg")
	assert.Equal(t, `X-Repolib-Name: cloud-init-daily
Enabled: yes
Types: deb
URIs: https://ppa.launchpadcontent.net/cloud-init-dev/daily/ubuntu
Suites: noble
Components: main
Signed-By: /etc/apt/trusted.gpg.d/cloud-init-daily.gpg`, content)
}

func TestSourcesFileContentNoKey(t *testing.T) {
	ppa := &chimgapi.PPA{
		Name:       "internal",
		URI:        "https://repo.example.com/ubuntu",
		Suites:     []string{"noble", "noble-updates"},
		Components: []string{"main", "universe"},
	}

	content := sourcesFileContent(ppa, "")
	assert.NotContains(t, content, "Signed-By")
	assert.Contains(t, content, "Suites: noble noble-updates")
	assert.Contains(t, content, "Components: main universe")
}

func TestAuthFileContent(t *testing.T) {
	ppa := &chimgapi.PPA{
		Name:     "private",
		URI:      "https://private.example.com/ubuntu",
		Username: "user",
		Password: "secret",
		AuthLines: []string{
			"machine mirror.example.com login u2 password p2",
		},
	}

	content := authFileContent(ppa)
	assert.Equal(t, "machine https://private.example.com/ubuntu login user password secret\n"+
		"machine mirror.example.com login u2 password p2", content)
}

func TestAuthFileContentEmpty(t *testing.T) {
	ppa := &chimgapi.PPA{
		Name: "public",
		URI:  "https://ppa.launchpadcontent.net/public/ubuntu",
	}

	assert.Empty(t, authFileContent(ppa))
}
