// NOTE: This is based on the dwarf 5 specification, section 7.5.

package dwarf

import (
	"fmt"
)

// See dwarf 5 table 7.3 for full list
type Tag uint64

const (
	DW_TAG_array_type               = Tag(0x01)
	DW_TAG_class_type               = Tag(0x02)
	DW_TAG_entry_point              = Tag(0x03)
	DW_TAG_enumeration_type         = Tag(0x04)
	DW_TAG_formal_parameter         = Tag(0x05)
	DW_TAG_imported_declaration     = Tag(0x08)
	DW_TAG_label                    = Tag(0x0a)
	DW_TAG_lexical_block            = Tag(0x0b)
	DW_TAG_member                   = Tag(0x0d)
	DW_TAG_pointer_type             = Tag(0x0f)
	DW_TAG_reference_type           = Tag(0x10)
	DW_TAG_compile_unit             = Tag(0x11)
	DW_TAG_string_type              = Tag(0x12)
	DW_TAG_structure_type           = Tag(0x13)
	DW_TAG_subroutine_type          = Tag(0x15)
	DW_TAG_typedef                  = Tag(0x16)
	DW_TAG_union_type               = Tag(0x17)
	DW_TAG_unspecified_parameters   = Tag(0x18)
	DW_TAG_variant                  = Tag(0x19)
	DW_TAG_inheritance              = Tag(0x1c)
	DW_TAG_inlined_subroutine       = Tag(0x1d)
	DW_TAG_module                   = Tag(0x1e)
	DW_TAG_ptr_to_member_type       = Tag(0x1f)
	DW_TAG_subrange_type            = Tag(0x21)
	DW_TAG_base_type                = Tag(0x24)
	DW_TAG_const_type               = Tag(0x26)
	DW_TAG_constant                 = Tag(0x27)
	DW_TAG_enumerator               = Tag(0x28)
	DW_TAG_subprogram               = Tag(0x2e)
	DW_TAG_template_type_parameter  = Tag(0x2f)
	DW_TAG_template_value_parameter = Tag(0x30)
	DW_TAG_variable                 = Tag(0x34)
	DW_TAG_volatile_type            = Tag(0x35)
	DW_TAG_restrict_type            = Tag(0x37)
	DW_TAG_namespace                = Tag(0x39)
	DW_TAG_imported_module          = Tag(0x3a)
	DW_TAG_unspecified_type         = Tag(0x3b)
	DW_TAG_partial_unit             = Tag(0x3c)
	DW_TAG_imported_unit            = Tag(0x3d)
	DW_TAG_type_unit                = Tag(0x41)
	DW_TAG_rvalue_reference_type    = Tag(0x42)
	DW_TAG_template_alias           = Tag(0x43)
	DW_TAG_coarray_type             = Tag(0x44)
	DW_TAG_atomic_type              = Tag(0x47)
	DW_TAG_call_site                = Tag(0x48)
	DW_TAG_call_site_parameter      = Tag(0x49)
	DW_TAG_skeleton_unit            = Tag(0x4a)
	DW_TAG_immutable_type           = Tag(0x4b)

	DW_TAG_GNU_call_site           = Tag(0x4109)
	DW_TAG_GNU_call_site_parameter = Tag(0x410a)

	DW_TAG_lo_user = Tag(0x4080)
	DW_TAG_hi_user = Tag(0xffff)
)

var tagNames = map[Tag]string{
	DW_TAG_array_type:               "DW_TAG_array_type",
	DW_TAG_class_type:               "DW_TAG_class_type",
	DW_TAG_entry_point:              "DW_TAG_entry_point",
	DW_TAG_enumeration_type:         "DW_TAG_enumeration_type",
	DW_TAG_formal_parameter:         "DW_TAG_formal_parameter",
	DW_TAG_imported_declaration:     "DW_TAG_imported_declaration",
	DW_TAG_label:                    "DW_TAG_label",
	DW_TAG_lexical_block:            "DW_TAG_lexical_block",
	DW_TAG_member:                   "DW_TAG_member",
	DW_TAG_pointer_type:             "DW_TAG_pointer_type",
	DW_TAG_reference_type:           "DW_TAG_reference_type",
	DW_TAG_compile_unit:             "DW_TAG_compile_unit",
	DW_TAG_string_type:              "DW_TAG_string_type",
	DW_TAG_structure_type:           "DW_TAG_structure_type",
	DW_TAG_subroutine_type:          "DW_TAG_subroutine_type",
	DW_TAG_typedef:                  "DW_TAG_typedef",
	DW_TAG_union_type:               "DW_TAG_union_type",
	DW_TAG_unspecified_parameters:   "DW_TAG_unspecified_parameters",
	DW_TAG_variant:                  "DW_TAG_variant",
	DW_TAG_inheritance:              "DW_TAG_inheritance",
	DW_TAG_inlined_subroutine:       "DW_TAG_inlined_subroutine",
	DW_TAG_module:                   "DW_TAG_module",
	DW_TAG_ptr_to_member_type:       "DW_TAG_ptr_to_member_type",
	DW_TAG_subrange_type:            "DW_TAG_subrange_type",
	DW_TAG_base_type:                "DW_TAG_base_type",
	DW_TAG_const_type:               "DW_TAG_const_type",
	DW_TAG_constant:                 "DW_TAG_constant",
	DW_TAG_enumerator:               "DW_TAG_enumerator",
	DW_TAG_subprogram:               "DW_TAG_subprogram",
	DW_TAG_template_type_parameter:  "DW_TAG_template_type_parameter",
	DW_TAG_template_value_parameter: "DW_TAG_template_value_parameter",
	DW_TAG_variable:                 "DW_TAG_variable",
	DW_TAG_volatile_type:            "DW_TAG_volatile_type",
	DW_TAG_restrict_type:            "DW_TAG_restrict_type",
	DW_TAG_namespace:                "DW_TAG_namespace",
	DW_TAG_imported_module:          "DW_TAG_imported_module",
	DW_TAG_unspecified_type:         "DW_TAG_unspecified_type",
	DW_TAG_partial_unit:             "DW_TAG_partial_unit",
	DW_TAG_imported_unit:            "DW_TAG_imported_unit",
	DW_TAG_type_unit:                "DW_TAG_type_unit",
	DW_TAG_rvalue_reference_type:    "DW_TAG_rvalue_reference_type",
	DW_TAG_template_alias:           "DW_TAG_template_alias",
	DW_TAG_coarray_type:             "DW_TAG_coarray_type",
	DW_TAG_atomic_type:              "DW_TAG_atomic_type",
	DW_TAG_call_site:                "DW_TAG_call_site",
	DW_TAG_call_site_parameter:      "DW_TAG_call_site_parameter",
	DW_TAG_skeleton_unit:            "DW_TAG_skeleton_unit",
	DW_TAG_immutable_type:           "DW_TAG_immutable_type",
	DW_TAG_GNU_call_site:            "DW_TAG_GNU_call_site",
	DW_TAG_GNU_call_site_parameter:  "DW_TAG_GNU_call_site_parameter",
}

func (tag Tag) String() string {
	name, ok := tagNames[tag]
	if ok {
		return name
	}
	return fmt.Sprintf("DW_TAG_unknown(%#x)", uint64(tag))
}
