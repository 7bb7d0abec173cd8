package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func passengerSchema() Schema {
	return Schema{
		"firstName": {
			Required("First name is required"),
			MinLength(2, "First name must be at least 2 characters"),
			MaxLength(10, "First name must be at most 10 characters"),
			Pattern(`^[A-Za-z\- ]+$`, "First name may contain letters only"),
		},
		"email": {
			Required("Email is required"),
			Email("Invalid email address"),
		},
		"nickname": {
			MinLength(3, "Nickname must be at least 3 characters"),
		},
	}
}

func TestForm_ValidateForm_Valid(t *testing.T) {
	form := NewForm(passengerSchema())

	ok := form.ValidateForm(map[string]string{
		"firstName": "Anna",
		"email":     "anna@example.com",
	})

	assert.True(t, ok)
	assert.Empty(t, form.Errors())
}

func TestForm_ValidateForm_RequiredShortCircuits(t *testing.T) {
	form := NewForm(passengerSchema())

	ok := form.ValidateForm(map[string]string{"firstName": "   "})

	assert.False(t, ok)
	errs := form.Errors()
	assert.Equal(t, []string{"First name is required"}, errs["firstName"])
	assert.Equal(t, []string{"Email is required"}, errs["email"])
	assert.NotContains(t, errs, "nickname")
}

func TestForm_ValidateForm_CollectsEveryFailure(t *testing.T) {
	form := NewForm(passengerSchema())

	ok := form.ValidateForm(map[string]string{
		"firstName": "A1",
		"email":     "not-an-email",
		"nickname":  "ab",
	})

	assert.False(t, ok)
	errs := form.Errors()
	assert.Equal(t, []string{"First name may contain letters only"}, errs["firstName"])
	assert.Equal(t, []string{"Invalid email address"}, errs["email"])
	assert.Equal(t, []string{"Nickname must be at least 3 characters"}, errs["nickname"])

	ok = form.ValidateForm(map[string]string{"firstName": "B4ssssssssss", "email": "b@example.com"})
	assert.False(t, ok)
	assert.Equal(t, []string{
		"First name must be at most 10 characters",
		"First name may contain letters only",
	}, form.Errors()["firstName"])
}

func TestForm_ValidateSingleField(t *testing.T) {
	form := NewForm(passengerSchema())
	form.ValidateForm(map[string]string{})
	assert.Len(t, form.Errors(), 2)

	assert.True(t, form.ValidateSingleField("email", "anna@example.com"))
	errs := form.Errors()
	assert.NotContains(t, errs, "email")
	assert.Contains(t, errs, "firstName")

	assert.False(t, form.ValidateSingleField("email", "broken"))
	assert.Equal(t, "Invalid email address", form.Errors().First("email"))
}

func TestForm_ErrorsIsACopy(t *testing.T) {
	form := NewForm(passengerSchema())
	form.ValidateForm(map[string]string{})

	errs := form.Errors()
	errs["email"][0] = "mutated"
	assert.Equal(t, "Email is required", form.Errors().First("email"))
}

func TestCustomAndOneOf(t *testing.T) {
	schema := Schema{
		"title": {Required("Title is required"), OneOf([]string{"Mr", "Ms", "Mrs"}, "Title must be Mr, Ms or Mrs")},
		"even":  {Custom(func(v string) bool { return len(v)%2 == 0 }, "Length must be even")},
	}

	assert.Empty(t, schema.Check("title", "Mrs"))
	assert.Equal(t, []string{"Title must be Mr, Ms or Mrs"}, schema.Check("title", "Dr"))
	assert.Equal(t, []string{"Length must be even"}, schema.Check("even", "abc"))
	assert.Empty(t, schema.Check("unknown", "anything"))
}

func TestErrors_String(t *testing.T) {
	errs := Errors{}
	errs.Add("b", "second")
	errs.Add("a", "first")
	errs.Merge("passengers[0].", Errors{"email": {"Invalid email address"}})

	assert.Equal(t, "a: first; b: second; passengers[0].email: Invalid email address", errs.String())
	assert.False(t, errs.Valid())
}
