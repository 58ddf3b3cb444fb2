package extension

import mt "github.com/grokify/omnisniff/pkg/mediatype"

// table maps a lower-case file extension to its media types. When an
// extension has several, the first is the most specific and the rest
// are fallbacks.
var table = map[string][]string{
	"apng":  {mt.APNG},
	"avif":  {mt.AVIF},
	"avifs": {mt.AVIF},
	"bmp":   {mt.BMP},
	"dib":   {mt.BMP},
	"djv":   {mt.DjVu},
	"djvu":  {mt.DjVu},
	"docx":  {mt.DOCX, mt.Zip},
	"dng":   {mt.TIFF},
	"dtd":   {mt.XMLDTD},
	"gif":   {mt.GIF},
	"gz":    {mt.Gzip},
	"heic":  {mt.HEIC},
	"heics": {mt.HEICSequence},
	"heif":  {mt.HEIF},
	"heifs": {mt.HEIFSequence},
	"hif":   {mt.HEIC, mt.HEIF},
	"htm":   {mt.HTML},
	"html":  {mt.HTML},
	"ico":   {mt.Icon},
	"jar":   {mt.JavaArchive, mt.Zip},
	"j2c":   {mt.J2C},
	"j2k":   {mt.J2C},
	"jfi":   {mt.JPEG},
	"jfif":  {mt.JPEG},
	"jif":   {mt.JPEG},
	"jp2":   {mt.JP2},
	"jpe":   {mt.JPEG},
	"jpeg":  {mt.JPEG},
	"jpf":   {mt.JPX},
	"jpg":   {mt.JPEG},
	"jpg2":  {mt.JP2},
	"jpgm":  {mt.JPM},
	"jpm":   {mt.JPM},
	"jpx":   {mt.JPX},
	"m1a":   {mt.MPEGAudio},
	"m1v":   {mt.MPEGVideo},
	"m2a":   {mt.MPEGAudio},
	"m2v":   {mt.MPEGVideo},
	"mj2":   {mt.MJ2},
	"mjp2":  {mt.MJ2},
	"mp1":   {mt.MPEGAudio},
	"mp1a":  {mt.MPEGAudio},
	"mp2":   {mt.MPEGAudio},
	"mp2a":  {mt.MPEGAudio},
	"mp3":   {mt.MPEGAudio},
	"mp4":   {mt.MP4},
	"mp4v":  {mt.MP4},
	"mpeg":  {mt.MPEGVideo},
	"mpg4":  {mt.MP4},
	"mpg":   {mt.MPEGVideo},
	"mpga":  {mt.MPEGAudio},
	"odp":   {mt.Zip},
	"ods":   {mt.Zip},
	"odt":   {mt.Zip},
	"otf":   {mt.OTF},
	"pdf":   {mt.PDF},
	"png":   {mt.PNG, mt.APNG},
	"pptx":  {mt.PPTX, mt.Zip},
	"svg":   {mt.SVG},
	"tgz":   {mt.Gzip},
	"tif":   {mt.TIFF},
	"tiff":  {mt.TIFF},
	"ttf":   {mt.TTF},
	"war":   {mt.Zip},
	"wbmp":  {mt.WBMP},
	"webp":  {mt.WebP},
	"woff":  {mt.WOFF},
	"woff2": {mt.WOFF2},
	"xlsx":  {mt.XLSX, mt.Zip},
	"xml":   {mt.XML},
	"z00":   {mt.Zip},
	"z01":   {mt.Zip},
	"z02":   {mt.Zip},
	"z03":   {mt.Zip},
	"z04":   {mt.Zip},
	"z05":   {mt.Zip},
	"z06":   {mt.Zip},
	"z07":   {mt.Zip},
	"z08":   {mt.Zip},
	"z09":   {mt.Zip},
	"zip":   {mt.Zip},
	"zipx":  {mt.Zip},
}
