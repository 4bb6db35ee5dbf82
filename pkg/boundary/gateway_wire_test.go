package boundary_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirkpetersen/claudefs/pkg/boundary"
)

func TestJSONReferralSerializer(t *testing.T) {
	var s boundary.NFSReferralSerializer = boundary.JSONReferralSerializer{}
	r := boundary.Referral{
		LocalPath: "/export/home",
		Targets:   []boundary.ReferralTarget{{Server: "nfs2.example.com", Port: 2049, ExportPath: "/export/home"}},
		Type:      boundary.ReferralMigration,
	}
	b, err := s.Serialize(r)
	require.NoError(t, err)
	assert.Contains(t, string(b), "nfs2.example.com")
}

type xmlStub struct {
	XMLName struct{} `xml:"Result"`
	Value   string   `xml:"Value"`
}

func TestXMLEncoder(t *testing.T) {
	var e boundary.S3XMLEncoder = boundary.XMLEncoder{}
	var buf bytes.Buffer
	require.NoError(t, e.Encode(&buf, xmlStub{Value: "ok"}))
	assert.Contains(t, buf.String(), "<Value>ok</Value>")
}

func TestPrefixS3RouterRoutesByMethodAndKey(t *testing.T) {
	var router boundary.S3Router = boundary.PrefixS3Router{}

	op, err := router.Route("GET", "/mybucket/")
	require.NoError(t, err)
	assert.Equal(t, boundary.S3OpListObjects, op)

	op, err = router.Route("GET", "/mybucket/key.txt")
	require.NoError(t, err)
	assert.Equal(t, boundary.S3OpGetObject, op)

	op, err = router.Route("PUT", "/mybucket")
	require.NoError(t, err)
	assert.Equal(t, boundary.S3OpCreateBucket, op)

	op, err = router.Route("DELETE", "/mybucket/key.txt")
	require.NoError(t, err)
	assert.Equal(t, boundary.S3OpDeleteObject, op)

	_, err = router.Route("PATCH", "/mybucket")
	assert.Error(t, err)
}
