package products

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/oidc-demo/oidc-demo-web/internal/api"
)

// Validation messages shown next to the form fields.
const (
	MsgNameRequired    = "Product name is required"
	MsgInvalidPrice    = "Price must be a non-negative number"
	MsgInvalidQuantity = "Quantity must be a non-negative whole number"
)

var fieldMessages = map[string]string{
	"Name":     MsgNameRequired,
	"Price":    MsgInvalidPrice,
	"Quantity": MsgInvalidQuantity,
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	_ = v.RegisterValidation("price", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && !d.IsNegative()
	})

	_ = v.RegisterValidation("quantity", func(fl validator.FieldLevel) bool {
		_, ok := parseQuantity(fl.Field().String())
		return ok
	})

	return v
}

// Draft is the product form while it is edited. It keeps what the user typed, so an invalid
// submission can be shown again unchanged.
type Draft struct {
	ID          int64  `form:"-"`
	Name        string `form:"name"        validate:"required"`
	Description string `form:"description"`
	Price       string `form:"price"       validate:"price"`
	Quantity    string `form:"quantity"    validate:"quantity"`
	Category    string `form:"category"`
}

// NewDraft returns the draft of a new product.
func NewDraft() Draft {
	return Draft{Price: "0", Quantity: "0"}
}

// DraftOf copies p into a draft.
func DraftOf(p *api.Product) Draft {
	return Draft{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.String(),
		Quantity:    strconv.Itoa(p.Quantity),
		Category:    p.Category,
	}
}

// Editing reports whether the draft belongs to an existing product.
func (d Draft) Editing() bool {
	return d.ID != 0
}

func (d *Draft) normalize() {
	d.Name = strings.TrimSpace(d.Name)
	d.Description = strings.TrimSpace(d.Description)
	d.Price = strings.TrimSpace(d.Price)
	d.Quantity = strings.TrimSpace(d.Quantity)
	d.Category = strings.TrimSpace(d.Category)
}

// Validate returns the message per invalid field, nil when the draft can be submitted.
func (d *Draft) Validate() map[string]string {
	d.normalize()

	err := validate.Struct(d)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return map[string]string{"": err.Error()}
	}

	messages := make(map[string]string, len(validationErrors))
	for _, ve := range validationErrors {
		messages[ve.Field()] = fieldMessages[ve.Field()]
	}

	return messages
}

// Input converts a valid draft into the request body.
func (d *Draft) Input() api.ProductInput {
	price, _ := api.NewPrice(d.Price)
	quantity, _ := parseQuantity(d.Quantity)

	return api.ProductInput{
		Name:        d.Name,
		Description: d.Description,
		Price:       price,
		Quantity:    quantity,
		Category:    d.Category,
	}
}

func parseQuantity(s string) (int, bool) {
	q, err := strconv.Atoi(s)
	if err != nil || q < 0 {
		return 0, false
	}

	return q, true
}
