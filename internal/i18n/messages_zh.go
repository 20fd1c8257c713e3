package i18n

// chineseMessages contains all Simplified Chinese translations.
var chineseMessages = map[string]string{
	"asset.music":  "音乐",
	"asset.lyrics": "歌词",
	"asset.cover":  "封面",
	"asset.none":   "无",

	"error.generic":         "出错了，请重试",
	"error.cancelled":       "操作已取消",
	"error.network":         "网络错误，请检查连接",
	"error.http_status":     "状态码: %d",
	"error.filesystem":      "无法写入 %s",
	"error.no_source":       "歌曲没有可用的下载链接",
	"error.not_applicable":  "该歌曲没有%s",
	"error.missing_api_key": "请先在设置中配置 API Key",
	"error.empty_input":     "请输入歌曲链接或歌曲 IDs",
	"error.unsupported":     "%s 不支持%s",
	"error.transform":       "无法解析 %s 的结果",
	"error.resolve_failed":  "请求失败：%s",

	"ensure.revealed": "%s已存在",
	"ensure.done":     "%s下载完成",
	"ensure.failed":   "%s下载失败: %s",

	"ensure_all.done":    "下载完成（%s）",
	"ensure_all.nothing": "全部文件已存在",
	"ensure_all.aborted": "音乐下载失败，已跳过其余文件: %s",
	"ensure_all.partial": "下载完成（%s），失败（%s）: %s",

	"delete.done":    "已删除（%s）",
	"delete.none":    "没有可删除的文件",
	"delete.partial": "已删除（%s），删除失败（%s）",

	"search.no_results": "没有找到结果",
	"history.empty":     "暂无历史记录",
	"history.cleared":   "历史记录已清空",
}
