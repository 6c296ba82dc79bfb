package dispatch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/vcfbot/core/vcard"
)

func TestChunk(t *testing.T) {
	chunks := Chunk(numbersList(25), 10, "Base")
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 10)
	assert.Len(t, chunks[1], 10)
	assert.Len(t, chunks[2], 5)
	assert.Equal(t, "Base 11", chunks[1][0].Name)
	assert.Equal(t, "Base 25", chunks[2][4].Name)

	assert.Nil(t, Chunk(nil, 10, "x"))
	assert.Nil(t, Chunk(numbersList(3), 0, "x"))
}

func TestOffsets(t *testing.T) {
	files := [][]vcard.Contact{make([]vcard.Contact, 2), nil, make([]vcard.Contact, 3), make([]vcard.Contact, 1)}
	assert.Equal(t, []int{0, 2, 2, 5}, Offsets(files))
}

func TestRenamedFile(t *testing.T) {
	assert.Equal(t, "contacts_1.vcf", RenamedFile("contacts", 0))
	assert.Equal(t, "contacts_3.vcf", RenamedFile("contacts.vcf", 2))
	assert.Equal(t, "Team_2.vcf", RenamedFile("Team.VCF", 1))
}

func TestSendFailureText(t *testing.T) {
	assert.Equal(t, "Failed to send `a.vcf` after 3 attempts.", SendFailureText("a.vcf", stubDeliveryErr{}))
	assert.Equal(t, "Failed to send `a.vcf`: Bad Request: file is empty", SendFailureText("a.vcf", stubDeliveryErr{permanent: true}))
	assert.Equal(t, "Failed to send `a.vcf`: plain", SendFailureText("a.vcf", errors.New("plain")))
}
