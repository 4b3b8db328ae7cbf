package dwarf

const (
	DW_ATE_address       = 0x01
	DW_ATE_boolean       = 0x02
	DW_ATE_complex_float = 0x03
	DW_ATE_float         = 0x04
	DW_ATE_signed        = 0x05
	DW_ATE_signed_char   = 0x06
	DW_ATE_unsigned      = 0x07
	DW_ATE_unsigned_char = 0x08
	DW_ATE_UTF           = 0x10

	DW_LANG_C89         = 0x0001
	DW_LANG_C           = 0x0002
	DW_LANG_C_plus_plus = 0x0004
	DW_LANG_C99         = 0x000c
	DW_LANG_C11         = 0x001d
	DW_LANG_Rust        = 0x001c

	// unit header types (dwarf 5 section 7.5.1)
	DW_UT_compile       = 0x01
	DW_UT_type          = 0x02
	DW_UT_partial       = 0x03
	DW_UT_skeleton      = 0x04
	DW_UT_split_compile = 0x05
	DW_UT_split_type    = 0x06

	// range list entries (dwarf 5 section 7.25)
	DW_RLE_end_of_list   = 0x00
	DW_RLE_base_addressx = 0x01
	DW_RLE_startx_endx   = 0x02
	DW_RLE_startx_length = 0x03
	DW_RLE_offset_pair   = 0x04
	DW_RLE_base_address  = 0x05
	DW_RLE_start_end     = 0x06
	DW_RLE_start_length  = 0x07
)
