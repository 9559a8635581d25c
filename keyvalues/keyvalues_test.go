package keyvalues

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const gameinfoSample = `
"GameInfo"
{
	game	"Test Mod" // inline name
	type	multiplayer_only

	FileSystem
	{
		SteamAppId	440

		SearchPaths
		{
			game	|gameinfo_path|.
			game	tf/tf2_misc.vpk
		}
	}
}
`

func TestParseDocument(t *testing.T) {
	require := require.New(t)

	root, err := Parse(strings.NewReader(gameinfoSample), "gameinfo.txt")
	require.NoError(err)
	require.Len(root.Children(), 1)

	gi := root.Find("gameinfo")
	require.NotNil(gi)
	require.True(gi.HasChildren())
	require.Equal("Test Mod", gi.Str("game", ""))
	require.Equal("multiplayer_only", gi.Str("type", ""))

	fsBlock := gi.Find("FileSystem")
	require.NotNil(fsBlock)
	require.Equal(440, fsBlock.Int("steamappid", 0))

	paths := fsBlock.Find("SearchPaths")
	require.NotNil(paths)
	entries := paths.FindAll("game")
	require.Len(entries, 2)
	require.Equal("|gameinfo_path|.", entries[0].Value)
	require.Equal("tf/tf2_misc.vpk", entries[1].Value)
}

func TestParseEscapesAndComments(t *testing.T) {
	require := require.New(t)

	src := "// leading comment\n\"msg\" \"line1\\nline2\\t\\\"quoted\\\"\"\n"
	root, err := Parse(strings.NewReader(src), "test")
	require.NoError(err)
	require.Equal("line1\nline2\t\"quoted\"", root.Str("msg", ""))
}

func TestParseBOM(t *testing.T) {
	require := require.New(t)

	src := "\xef\xbb\xbf\"key\" \"value\"\n"
	root, err := Parse(strings.NewReader(src), "test")
	require.NoError(err)
	require.Equal("value", root.Str("key", ""))
}

func TestAccessorDefaults(t *testing.T) {
	require := require.New(t)

	root, err := Parse(strings.NewReader(`
"opts"
{
	"count"   "3"
	"enabled" "1"
	"off"     "no"
	"block" { }
}
`), "test")
	require.NoError(err)

	opts := root.Find("OPTS")
	require.NotNil(opts)
	require.Equal(3, opts.Int("count", -1))
	require.Equal(-1, opts.Int("missing", -1))
	require.True(opts.Bool("enabled", false))
	require.False(opts.Bool("off", true))
	require.True(opts.Bool("missing", true))
	// A block child never satisfies a value accessor.
	require.Equal("def", opts.Str("block", "def"))
	require.Nil(opts.Find("nope"))
}

func TestParseErrors(t *testing.T) {
	require := require.New(t)

	cases := []struct {
		name string
		src  string
		want string
	}{
		{"unclosed block", "\"a\"\n{\n\"b\" \"c\"\n", "unexpected end of file"},
		{"unmatched close", "}\n", "unmatched }"},
		{"missing value", "\"a\"\n", "has no value"},
		{"unterminated string", "\"a\" \"oops", "unterminated string"},
		{"keyless block", "{ }", "block has no key"},
	}

	for _, tc := range cases {
		_, err := Parse(strings.NewReader(tc.src), tc.name)
		require.Error(err, tc.name)
		require.Contains(err.Error(), tc.want, tc.name)

		var pe *ParseError
		require.ErrorAs(err, &pe, tc.name)
		require.Equal(tc.name, pe.File, tc.name)
	}
}

func TestParseErrorLineNumbers(t *testing.T) {
	require := require.New(t)

	src := "\"a\" \"1\"\n\"b\" \"2\"\n\"c\""
	_, err := Parse(strings.NewReader(src), "lines.txt")
	require.Error(err)

	var pe *ParseError
	require.ErrorAs(err, &pe)
	require.Equal(3, pe.Line)
	require.Equal("lines.txt:3: key \"c\" has no value", pe.Error())
}
