package backoff

import (
	"math/rand"
	"strconv"
	"time"
)

// Policy 统一的重试等待策略（HTTP抓取与邮件重发共用，参数化避免各处手写循环）
type Policy struct {
	Base      time.Duration // 等待基数
	Cap       time.Duration // 指数模式的上限（0=不封顶）
	JitterMin time.Duration // 抖动下限
	JitterMax time.Duration // 抖动上限
	Linear    bool          // true: Base*attempt；false: min(Base<<attempt, Cap)
}

// HTTPDefault 页面抓取的默认策略：min(2^attempt, cap) + uniform(0.2, 0.8)s
func HTTPDefault() Policy {
	return Policy{
		Base:      time.Second,
		Cap:       60 * time.Second,
		JitterMin: 200 * time.Millisecond,
		JitterMax: 800 * time.Millisecond,
	}
}

// Mail 邮件重发策略：baseWait * attempt，无抖动
func Mail(baseWait time.Duration) Policy {
	return Policy{Base: baseWait, Linear: true}
}

// Wait 计算第attempt次失败后的等待时长（attempt从0开始）
func (p Policy) Wait(attempt int) time.Duration {
	var d time.Duration
	if p.Linear {
		d = p.Base * time.Duration(attempt+1)
	} else {
		if attempt > 30 {
			attempt = 30 // 防溢出
		}
		d = p.Base << uint(attempt)
		if p.Cap > 0 && d > p.Cap {
			d = p.Cap
		}
	}
	if p.JitterMax > p.JitterMin {
		d += p.JitterMin + time.Duration(rand.Int63n(int64(p.JitterMax-p.JitterMin)))
	} else {
		d += p.JitterMin
	}
	return d
}

// Sleep 按策略等待，ctx风格的中断交由调用方（扫描任务本身是顺序批处理）
func (p Policy) Sleep(attempt int) {
	time.Sleep(p.Wait(attempt))
}

// FromRetryAfter 解析数字形式的Retry-After头；解析成功时覆盖计算出的等待
func FromRetryAfter(header string) (time.Duration, bool) {
	if header == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}
