package sanitise_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/tenant-lifecycle/utils/sanitise"
)

type contact struct {
	Email string
}

type request struct {
	Name     string
	Raw      string `sanitise:"false"`
	Tier     *string
	Tags     []string
	Contact  contact
	Attempts int
}

func TestStrings(t *testing.T) {
	tier := "<b>gold</b>"

	req := request{
		Name:     "Acme<script>alert(1)</script>",
		Raw:      "<i>kept</i>",
		Tier:     &tier,
		Tags:     []string{"<a href='x'>eu</a>", "plain"},
		Contact:  contact{Email: "<img src=x onerror=alert(1)>ops@acme.test"},
		Attempts: 3,
	}

	require.NoError(t, sanitise.Strings(&req))

	assert.Equal(t, "Acme", req.Name)
	assert.Equal(t, "<i>kept</i>", req.Raw)
	assert.Equal(t, "gold", *req.Tier)
	assert.Equal(t, []string{"eu", "plain"}, req.Tags)
	assert.Equal(t, "ops@acme.test", req.Contact.Email)
	assert.Equal(t, 3, req.Attempts)
}

func TestStringsRejects(t *testing.T) {
	t.Run("non pointer", func(t *testing.T) {
		err := sanitise.Strings(request{})
		assert.ErrorIs(t, err, sanitise.ErrUnsupportedType)
	})

	t.Run("unsupported field", func(t *testing.T) {
		err := sanitise.Strings(&struct{ Labels map[string]string }{Labels: map[string]string{}})
		assert.ErrorIs(t, err, sanitise.ErrSanitisation)
		assert.ErrorIs(t, err, sanitise.ErrUnsupportedType)
	})
}

func TestString(t *testing.T) {
	s, err := sanitise.String("t-100")
	require.NoError(t, err)
	assert.Equal(t, "t-100", s)

	s, err = sanitise.String("<b>t-100</b>")
	require.NoError(t, err)
	assert.Equal(t, "t-100", s)
}
