package characteristiclist

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/srg/charlist/internal/device"
	"github.com/srg/charlist/internal/ui/fieldset"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Section headers of the expanded panel
const (
	briefHeader      = "Characteristic:"
	infoHeader       = "Characteristic Info"
	propertiesHeader = "Properties"
)

// infoPropertyNames labels the identity fieldset.
var infoPropertyNames = fieldset.Names(
	"id", "ID",
	"uuid.uuid", "UUID",
)

// propertiesPropertyNames labels the properties fieldset in flag order.
var propertiesPropertyNames = func() *orderedmap.OrderedMap[string, string] {
	names := orderedmap.New[string, string]()
	for _, f := range device.PropertyFlags() {
		names.Set(f.Key, f.Label)
	}
	return names
}()

// ListItem displays one CharacteristicInfo: a brief UUID summary and, expanded, an
// identity fieldset and a fieldset of the fourteen decoded property flags.
type ListItem struct {
	info                 device.CharacteristicInfo
	characteristicFields *fieldset.ObjectFieldSet
	propertiesFields     *fieldset.ObjectFieldSet
}

// NewListItem builds the item for info. The item never changes after construction.
func NewListItem(info device.CharacteristicInfo) *ListItem {
	item := &ListItem{info: info}

	identity := orderedmap.New[string, any]()
	identity.Set("id", info.ID)
	identity.Set("uuid.uuid", info.UUID.UUID)
	item.characteristicFields = fieldset.New()
	item.characteristicFields.SetPropertyDisplayNames(infoPropertyNames)
	item.characteristicFields.SetObject(identity)

	item.propertiesFields = fieldset.New()
	item.propertiesFields.SetPropertyDisplayNames(propertiesPropertyNames)
	item.propertiesFields.SetObject(propertyValues(info.Properties))

	return item
}

// propertyValues decodes every known flag of p into key → bool.
func propertyValues(p device.Property) *orderedmap.OrderedMap[string, any] {
	values := orderedmap.New[string, any]()
	for _, f := range device.PropertyFlags() {
		values.Set(f.Key, p&f.Bit > 0)
	}
	return values
}

// Info returns the characteristic the item was built from.
func (i *ListItem) Info() device.CharacteristicInfo {
	return i.info
}

// CharacteristicFields returns the identity fieldset.
func (i *ListItem) CharacteristicFields() []fieldset.Field {
	return i.characteristicFields.Fields()
}

// PropertyFields returns the decoded property flags in display order.
func (i *ListItem) PropertyFields() []fieldset.Field {
	return i.propertiesFields.Fields()
}

// Brief returns "Characteristic: <uuid>", with the assigned name when known.
func (i *ListItem) Brief() string {
	if name := device.KnownCharacteristicName(i.info.UUID.UUID); name != "" {
		return fmt.Sprintf("%s %s (%s)", briefHeader, i.info.UUID.UUID, name)
	}
	return fmt.Sprintf("%s %s", briefHeader, i.info.UUID.UUID)
}

// RenderExpanded writes both fieldsets under their section headers.
func (i *ListItem) RenderExpanded(w io.Writer, indent string) error {
	header := color.New(color.Underline)
	if _, err := fmt.Fprintf(w, "%s%s\n", indent, header.Sprint(infoHeader)); err != nil {
		return err
	}
	if err := i.characteristicFields.Render(w, indent+indent); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%s%s\n", indent, header.Sprint(propertiesHeader)); err != nil {
		return err
	}
	return i.propertiesFields.Render(w, indent+indent)
}

// itemJSON is the JSON view of a ListItem.
type itemJSON struct {
	ID         string                                `json:"id"`
	UUID       device.UUID                           `json:"uuid"`
	Name       string                                `json:"name,omitempty"`
	Properties *orderedmap.OrderedMap[string, bool] `json:"properties"`
}

// MarshalJSON renders the identity fields and the decoded flags in display order.
func (i *ListItem) MarshalJSON() ([]byte, error) {
	props := orderedmap.New[string, bool]()
	for _, f := range i.PropertyFields() {
		b, _ := f.Value.(bool)
		props.Set(f.Key, b)
	}
	return json.Marshal(itemJSON{
		ID:         i.info.ID,
		UUID:       i.info.UUID,
		Name:       device.KnownCharacteristicName(i.info.UUID.UUID),
		Properties: props,
	})
}
